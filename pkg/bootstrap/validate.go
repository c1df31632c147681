package bootstrap

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"

	"github.com/namix-io/bootstrap-engine/pkg/health"
)

// podSummary is the readiness snapshot validation is decided on. It is
// recomputed on every check and never persisted.
type podSummary struct {
	total    int
	ready    int
	starting int
}

func summarize(pods []corev1.Pod) podSummary {
	summary := podSummary{total: len(pods)}
	for i := range pods {
		switch health.GetPodHealth(&pods[i]).Status {
		case health.HealthStatusHealthy:
			summary.ready++
		case health.HealthStatusProgressing:
			summary.starting++
		}
	}
	return summary
}

// validate classifies the final pod state and decides the outcome:
//
//   - all pods ready: fetch and print the admin credential, succeed
//   - every pod either ready or still starting: wait once more, recheck the
//     ready count only, then succeed or fail
//   - anything else (failed or unknown pods): fail immediately
func (b *Bootstrapper) validate(ctx context.Context) error {
	span := b.tracer.StartSpan("Validate")
	defer span.Finish()

	pods, err := b.client.GetPods(ctx, b.opts.Namespace)
	if err != nil {
		return fmt.Errorf("list pods for validation: %w", err)
	}

	summary := summarize(pods)
	b.log.Info("Validation snapshot", "ready", summary.ready, "starting", summary.starting, "total", summary.total)

	if summary.total > 0 && summary.ready == summary.total {
		return b.reportSuccess(ctx)
	}

	if summary.total > 0 && summary.starting > 0 && summary.ready+summary.starting == summary.total {
		b.log.Info("Some pods are still starting, waiting once more")
		b.sleep(b.opts.ValidationGrace, "validation grace period")

		pods, err = b.client.GetPods(ctx, b.opts.Namespace)
		if err != nil {
			return fmt.Errorf("list pods for revalidation: %w", err)
		}
		recheck := summarize(pods)
		if recheck.total > 0 && recheck.ready == recheck.total {
			return b.reportSuccess(ctx)
		}
		b.logPodStatus(ctx)
		return fmt.Errorf("%d of %d pods ready after extended wait", recheck.ready, recheck.total)
	}

	b.logPodStatus(ctx)
	return fmt.Errorf("%d of %d pods ready, %d starting, %d failed or unknown",
		summary.ready, summary.total, summary.starting, summary.total-summary.ready-summary.starting)
}

// reportSuccess fetches the generated admin credential and prints the access
// details.
func (b *Bootstrapper) reportSuccess(ctx context.Context) error {
	password, err := b.client.GetSecretValue(ctx, b.opts.Namespace, b.opts.AdminSecretName, b.opts.AdminSecretKey)
	if err != nil {
		return fmt.Errorf("fetch admin credential: %w", err)
	}

	b.log.Info("Argo CD deployed successfully", "namespace", b.opts.Namespace)
	fmt.Fprintf(b.out, "Argo CD is ready.\n")
	fmt.Fprintf(b.out, "URL:      %s\n", b.opts.AdminURL)
	fmt.Fprintf(b.out, "Username: admin\n")
	fmt.Fprintf(b.out, "Password: %s\n", password)
	return nil
}
