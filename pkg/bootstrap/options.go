package bootstrap

import "time"

// Backoff decides how long to wait before the next deploy attempt. The
// default policy is a constant delay; the interface leaves room for
// exponential or jittered policies without touching the driver.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// ConstantBackoff waits the same duration after every failed attempt.
type ConstantBackoff struct {
	Interval time.Duration
}

var _ Backoff = ConstantBackoff{}

func (b ConstantBackoff) Delay(_ int) time.Duration {
	return b.Interval
}

// Options configures the bootstrap driver. The delay values are heuristic
// settle times for asynchronous propagation in the control plane, not
// guaranteed synchronization points. They are sized for clusters with
// historically slow cold starts.
type Options struct {
	// Namespace everything is deployed into.
	Namespace string
	// ManifestDir holds the ordered manifest files.
	ManifestDir string
	// Deployments whose readiness gates the deploy-retry loop.
	Deployments []string

	// AdminSecretName and AdminSecretKey locate the generated admin credential.
	AdminSecretName string
	AdminSecretKey  string
	// AdminURL is printed alongside the credential on success.
	AdminURL string

	// MaxAttempts bounds the deploy-retry loop.
	MaxAttempts int
	// RetryBackoff is consulted between failed deploy attempts.
	RetryBackoff Backoff

	// Settle delays after the corresponding infrastructure manifests.
	ConfigMapSettle time.Duration
	SecretSettle    time.Duration
	ServiceSettle   time.Duration

	// DeployGrace is the wait after applying the deployments manifest before
	// the first health check. RestartGrace is the extra wait when any
	// deployment had to be restarted.
	DeployGrace  time.Duration
	RestartGrace time.Duration

	// PodPollInterval and PodWaitBudget drive the pod readiness poll inside
	// each deploy attempt.
	PodPollInterval time.Duration
	PodWaitBudget   time.Duration

	// RepoSecretSettle is the wait after applying the repository secret,
	// which can trigger reconciliation elsewhere.
	RepoSecretSettle time.Duration

	// FinalWaitBudget bounds the blocking wait of the final convergence pass;
	// FinalTimeoutGrace is the unconditional extra wait when it times out.
	// ReapplySettle follows the final consistency re-apply.
	FinalWaitBudget   time.Duration
	FinalTimeoutGrace time.Duration
	ReapplySettle     time.Duration

	// ValidationGrace is the single extra wait granted when all pods are
	// either ready or still starting.
	ValidationGrace time.Duration
}

// DefaultOptions returns the production configuration for bootstrapping
// Argo CD.
func DefaultOptions() Options {
	return Options{
		Namespace:   "argocd",
		ManifestDir: ".",
		Deployments: []string{
			"argocd-server",
			"argocd-repo-server",
			"argocd-dex-server",
			"argocd-applicationset-controller",
			"argocd-notifications-controller",
		},
		AdminSecretName:   "argocd-initial-admin-secret",
		AdminSecretKey:    "password",
		AdminURL:          "https://argocd.local",
		MaxAttempts:       3,
		RetryBackoff:      ConstantBackoff{Interval: 30 * time.Second},
		ConfigMapSettle:   10 * time.Second,
		SecretSettle:      10 * time.Second,
		ServiceSettle:     5 * time.Second,
		DeployGrace:       45 * time.Second,
		RestartGrace:      60 * time.Second,
		PodPollInterval:   10 * time.Second,
		PodWaitBudget:     180 * time.Second,
		RepoSecretSettle:  30 * time.Second,
		FinalWaitBudget:   180 * time.Second,
		FinalTimeoutGrace: 60 * time.Second,
		ReapplySettle:     30 * time.Second,
		ValidationGrace:   60 * time.Second,
	}
}
