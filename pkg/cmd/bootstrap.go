// Package cmd wires the bootstrap driver into a cobra command.
package cmd

import (
	goflag "flag"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/cli-runtime/pkg/genericclioptions"
	"k8s.io/klog/v2"
	"k8s.io/klog/v2/klogr"

	"github.com/namix-io/bootstrap-engine/pkg/bootstrap"
	"github.com/namix-io/bootstrap-engine/pkg/utils/kube"
	"github.com/namix-io/bootstrap-engine/pkg/utils/tracing"
)

// NewBootstrapCommand returns the argocd-bootstrap root command. Flag
// defaults reproduce the historical bootstrap behavior; the kubeconfig and
// context flags come from cli-runtime so they behave exactly like kubectl's.
func NewBootstrapCommand() *cobra.Command {
	opts := bootstrap.DefaultOptions()
	retryDelay := 30 * time.Second
	configFlags := genericclioptions.NewConfigFlags(true)

	command := &cobra.Command{
		Use:   "argocd-bootstrap",
		Short: "Deploy Argo CD from local manifests and wait for it to converge",
		Long: `Applies the fixed, ordered set of Argo CD manifests from the manifest
directory, converges on Deployment and Pod readiness with a bounded retry
loop, and prints the generated admin credential on success.`,
		SilenceUsage: true,
		RunE: func(command *cobra.Command, _ []string) error {
			log := klogr.New()

			restConfig, err := configFlags.ToRESTConfig()
			if err != nil {
				return fmt.Errorf("build rest config: %w", err)
			}

			client, err := kube.NewClientFromConfig(restConfig, log,
				kube.WithTracer(tracing.LoggingTracer{}))
			if err != nil {
				return err
			}

			if configFlags.Namespace != nil && *configFlags.Namespace != "" {
				opts.Namespace = *configFlags.Namespace
			}
			opts.RetryBackoff = bootstrap.ConstantBackoff{Interval: retryDelay}
			driver := bootstrap.New(client, log, opts,
				bootstrap.WithTracer(tracing.LoggingTracer{}),
				bootstrap.WithOutput(command.OutOrStdout()))
			return driver.Run(command.Context())
		},
	}

	command.Flags().StringVar(&opts.ManifestDir, "manifest-dir", opts.ManifestDir,
		"Directory containing the ordered bootstrap manifests")
	command.Flags().StringVar(&opts.AdminURL, "admin-url", opts.AdminURL,
		"URL printed alongside the admin credential on success")
	command.Flags().IntVar(&opts.MaxAttempts, "max-attempts", opts.MaxAttempts,
		"Maximum deploy attempts before giving up")
	command.Flags().DurationVar(&retryDelay, "retry-delay", retryDelay,
		"Delay between failed deploy attempts")
	command.Flags().DurationVar(&opts.PodWaitBudget, "pod-wait-budget", opts.PodWaitBudget,
		"Per-attempt budget for pods to leave transitional phases")

	configFlags.AddFlags(command.Flags())

	klogFlags := goflag.NewFlagSet("klog", goflag.ExitOnError)
	klog.InitFlags(klogFlags)
	command.Flags().AddGoFlagSet(klogFlags)

	return command
}
