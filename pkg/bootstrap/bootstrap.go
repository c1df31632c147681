/*
Package bootstrap drives the initial deployment of Argo CD onto a cluster:
it applies a fixed, ordered set of manifests, converges on Deployment and
Pod readiness with a bounded retry loop, and extracts the generated admin
credential once everything is healthy.

Convergence is deliberately not event driven. The driver polls with fixed
settle delays between phases, which matches how the target clusters actually
come up and keeps the control flow a single linear procedure.
*/
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/utils/clock"

	"github.com/namix-io/bootstrap-engine/pkg/health"
	"github.com/namix-io/bootstrap-engine/pkg/manifest"
	"github.com/namix-io/bootstrap-engine/pkg/utils/kube"
	"github.com/namix-io/bootstrap-engine/pkg/utils/tracing"
)

// Bootstrapper deploys Argo CD and waits for it to converge. All state is
// local to the struct; the cluster is the only shared resource.
type Bootstrapper struct {
	client kube.Client
	log    logr.Logger
	tracer tracing.Tracer
	clock  clock.Clock
	out    io.Writer
	opts   Options
}

// New creates a Bootstrapper.
func New(client kube.Client, log logr.Logger, opts Options, setters ...Setter) *Bootstrapper {
	b := &Bootstrapper{
		client: client,
		log:    log,
		tracer: tracing.NopTracer{},
		clock:  clock.RealClock{},
		out:    os.Stdout,
		opts:   opts,
	}
	for _, set := range setters {
		set(b)
	}
	return b
}

// Setter customizes a Bootstrapper.
type Setter func(*Bootstrapper)

// WithTracer sets the tracer used to time phases.
func WithTracer(tracer tracing.Tracer) Setter {
	return func(b *Bootstrapper) {
		b.tracer = tracer
	}
}

// WithClock overrides the clock used for settle delays.
func WithClock(c clock.Clock) Setter {
	return func(b *Bootstrapper) {
		b.clock = c
	}
}

// WithOutput redirects the success report (admin URL and credential).
func WithOutput(out io.Writer) Setter {
	return func(b *Bootstrapper) {
		b.out = out
	}
}

// Run executes the full bootstrap: preflight, infrastructure apply,
// deploy-retry loop, remaining resources, final convergence and validation.
func (b *Bootstrapper) Run(ctx context.Context) error {
	err := b.preflight()
	if err != nil {
		return err
	}

	err = b.applyInfrastructure(ctx)
	if err != nil {
		return err
	}

	err = b.deployWithRetry(ctx)
	if err != nil {
		return err
	}

	err = b.applyRemaining(ctx)
	if err != nil {
		return err
	}

	err = b.finalConvergence(ctx)
	if err != nil {
		return err
	}

	return b.validate(ctx)
}

// preflight verifies all manifest files exist before anything is applied.
func (b *Bootstrapper) preflight() error {
	span := b.tracer.StartSpan("Preflight")
	defer span.Finish()

	err := manifest.Preflight(b.opts.ManifestDir)
	if err != nil {
		return err
	}
	b.log.Info("All manifest files present", "dir", b.opts.ManifestDir, "count", len(manifest.Files))
	return nil
}

// applyFile loads one manifest file and applies every document in it.
func (b *Bootstrapper) applyFile(ctx context.Context, name string) error {
	objs, err := manifest.Load(filepath.Join(b.opts.ManifestDir, name))
	if err != nil {
		return err
	}
	for _, obj := range objs {
		message, err := b.client.Apply(ctx, obj)
		if err != nil {
			return fmt.Errorf("apply %s: %w", name, err)
		}
		b.log.Info(message, "manifest", name)
	}
	return nil
}

// applyInfrastructure applies the first eight manifests strictly in order,
// aborting on the first failure. Settle delays follow the config maps,
// secrets and services so dependent components see them propagated.
func (b *Bootstrapper) applyInfrastructure(ctx context.Context) error {
	span := b.tracer.StartSpan("ApplyInfrastructure")
	defer span.Finish()

	for i, name := range manifest.Files[:manifest.InfrastructureEnd] {
		err := b.applyFile(ctx, name)
		if err != nil {
			return err
		}
		b.settleAfter(i)
	}
	return nil
}

// settleAfter sleeps the configured settle delay for the manifest at the
// given index, if any.
func (b *Bootstrapper) settleAfter(index int) {
	switch manifest.Files[index] {
	case "05-configmaps.yaml":
		b.sleep(b.opts.ConfigMapSettle, "config maps settle")
	case "06-secrets.yaml":
		b.sleep(b.opts.SecretSettle, "secrets settle")
	case "07-services.yaml":
		b.sleep(b.opts.ServiceSettle, "services settle")
	}
}

func (b *Bootstrapper) sleep(d time.Duration, reason string) {
	if d <= 0 {
		return
	}
	b.log.V(1).Info("Sleeping", "duration", d.String(), "reason", reason)
	b.clock.Sleep(d)
}

// deployWithRetry applies the deployments manifest and converges on pod
// readiness, restarting unhealthy deployments, for at most MaxAttempts
// attempts.
func (b *Bootstrapper) deployWithRetry(ctx context.Context) error {
	span := b.tracer.StartSpan("DeployWithRetry")
	defer span.Finish()

	deployments := manifest.Files[manifest.DeploymentsIndex]
	for attempt := 1; attempt <= b.opts.MaxAttempts; attempt++ {
		b.log.Info("Deploy attempt", "attempt", attempt, "maxAttempts", b.opts.MaxAttempts)

		err := b.applyFile(ctx, deployments)
		if err != nil {
			return err
		}
		b.sleep(b.opts.DeployGrace, "deployment grace period")

		restarted, err := b.restartUnhealthyDeployments(ctx)
		if err != nil {
			return err
		}
		if restarted {
			b.sleep(b.opts.RestartGrace, "restarted deployments grace period")
		}

		err = b.waitForPodsSettled(ctx)
		if err == nil {
			b.log.Info("All pods settled", "attempt", attempt)
			return nil
		}

		if attempt == b.opts.MaxAttempts {
			b.logPodStatus(ctx)
			return fmt.Errorf("pods not ready after %d attempts: %w", b.opts.MaxAttempts, err)
		}
		b.log.Info("Pods not ready yet, retrying", "attempt", attempt, "error", err.Error())
		b.sleep(b.opts.RetryBackoff.Delay(attempt), "retry backoff")
	}
	return nil
}

// restartUnhealthyDeployments issues a rolling restart for every named
// deployment whose ready replica count does not match the desired count.
// Deployments absent from the cluster are skipped.
func (b *Bootstrapper) restartUnhealthyDeployments(ctx context.Context) (bool, error) {
	restarted := false
	for _, name := range b.opts.Deployments {
		deployment, err := b.client.GetDeployment(ctx, b.opts.Namespace, name)
		if err != nil {
			if apierrors.IsNotFound(err) {
				b.log.V(1).Info("Deployment not found, skipping", "name", name)
				continue
			}
			return restarted, fmt.Errorf("get deployment %s: %w", name, err)
		}

		status := health.GetDeploymentHealth(deployment)
		if status.Status == health.HealthStatusHealthy {
			continue
		}

		b.log.Info("Deployment unhealthy, restarting", "name", name, "status", status.Message)
		err = b.client.RestartDeployment(ctx, b.opts.Namespace, name)
		if err != nil {
			return restarted, err
		}
		restarted = true
	}
	return restarted, nil
}

// waitForPodsSettled polls until the namespace has pods and none of them is
// in a phase other than Running or Succeeded, within the pod wait budget. An
// empty namespace keeps the poll going rather than counting as settled: right
// after the apply the deployment controller may not have created pods yet,
// and the retry loop handles the case where they never appear.
func (b *Bootstrapper) waitForPodsSettled(ctx context.Context) error {
	notSettled := 0
	total := 0
	err := wait.PollImmediateWithContext(ctx, b.opts.PodPollInterval, b.opts.PodWaitBudget, func(ctx context.Context) (bool, error) {
		pods, err := b.client.GetPods(ctx, b.opts.Namespace)
		if err != nil {
			// Transient list errors do not abort the wait.
			return false, nil
		}
		total = len(pods)
		if total == 0 {
			b.log.V(1).Info("No pods created yet", "namespace", b.opts.Namespace)
			return false, nil
		}
		notSettled = 0
		for i := range pods {
			if !health.IsPodSettled(&pods[i]) {
				notSettled++
			}
		}
		if notSettled > 0 {
			b.log.V(1).Info("Waiting for pods", "notReady", notSettled, "total", total)
		}
		return notSettled == 0, nil
	})
	if err != nil {
		if total == 0 {
			return fmt.Errorf("no pods were created in %s: %w", b.opts.Namespace, err)
		}
		return fmt.Errorf("%d pods are still not ready: %w", notSettled, err)
	}
	return nil
}

// applyRemaining applies the manifests after the deployments: network
// policies, then the repository secret. The repository secret triggers
// reconciliation in Argo CD, so an extra settle delay follows it.
func (b *Bootstrapper) applyRemaining(ctx context.Context) error {
	span := b.tracer.StartSpan("ApplyRemaining")
	defer span.Finish()

	for i := manifest.RemainingStart; i < len(manifest.Files); i++ {
		err := b.applyFile(ctx, manifest.Files[i])
		if err != nil {
			return err
		}
		if i == manifest.RepoSecretIndex {
			b.sleep(b.opts.RepoSecretSettle, "repository secret settle")
		}
	}
	return nil
}

// finalConvergence blocks until all pods report Ready, then re-applies the
// deployments manifest once as a consistency nudge. A timeout here is not
// fatal; validation decides the outcome.
func (b *Bootstrapper) finalConvergence(ctx context.Context) error {
	span := b.tracer.StartSpan("FinalConvergence")
	defer span.Finish()

	err := b.client.WaitForPodsReady(ctx, b.opts.Namespace, b.opts.PodPollInterval, b.opts.FinalWaitBudget)
	if err != nil {
		b.log.Info("Pods did not all become ready in time", "error", err.Error())
		b.logPodStatus(ctx)
		b.sleep(b.opts.FinalTimeoutGrace, "post timeout grace period")
	}

	err = b.applyFile(ctx, manifest.Files[manifest.DeploymentsIndex])
	if err != nil {
		return err
	}
	b.sleep(b.opts.ReapplySettle, "consistency re-apply settle")
	return nil
}

// logPodStatus logs one line per pod with its phase, plus the aggregate
// namespace health. Used on failure paths so the operator sees the final
// cluster state.
func (b *Bootstrapper) logPodStatus(ctx context.Context) {
	pods, err := b.client.GetPods(ctx, b.opts.Namespace)
	if err != nil {
		b.log.Error(err, "Unable to list pods for status report")
		return
	}
	for i := range pods {
		pod := &pods[i]
		b.log.Info("Pod status", "name", pod.Name, "phase", string(pod.Status.Phase),
			"health", string(health.GetPodHealth(pod).Status))
	}
	b.log.Info("Namespace health", "namespace", b.opts.Namespace,
		"status", string(health.AggregatePodHealth(pods)), "pods", len(pods))
}
