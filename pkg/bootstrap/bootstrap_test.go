package bootstrap

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/klog/v2/textlogger"

	"github.com/namix-io/bootstrap-engine/pkg/manifest"
	testingutils "github.com/namix-io/bootstrap-engine/pkg/utils/testing"
)

// fakeClient records every cluster operation the driver performs.
type fakeClient struct {
	applied     []string
	applyErrOn  string
	deployments map[string]*appsv1.Deployment
	restarted   []string
	podBatches  [][]corev1.Pod
	podCalls    int
	waitErr     error
	secretData  map[string]string
	secretErr   error
}

func (f *fakeClient) Apply(_ context.Context, obj *unstructured.Unstructured) (string, error) {
	key := strings.ToLower(obj.GetKind()) + "/" + obj.GetName()
	if f.applyErrOn != "" && key == f.applyErrOn {
		return "", errors.New("apply refused")
	}
	f.applied = append(f.applied, key)
	return key + " created", nil
}

func (f *fakeClient) GetPods(_ context.Context, _ string) ([]corev1.Pod, error) {
	if len(f.podBatches) == 0 {
		return nil, nil
	}
	batch := f.podBatches[0]
	if len(f.podBatches) > 1 {
		f.podBatches = f.podBatches[1:]
	}
	f.podCalls++
	return batch, nil
}

func (f *fakeClient) GetDeployment(_ context.Context, _ string, name string) (*appsv1.Deployment, error) {
	deployment, ok := f.deployments[name]
	if !ok {
		return nil, apierrors.NewNotFound(schema.GroupResource{Group: "apps", Resource: "deployments"}, name)
	}
	return deployment, nil
}

func (f *fakeClient) RestartDeployment(_ context.Context, _ string, name string) error {
	f.restarted = append(f.restarted, name)
	return nil
}

func (f *fakeClient) WaitForPodsReady(_ context.Context, _ string, _ time.Duration, _ time.Duration) error {
	return f.waitErr
}

func (f *fakeClient) GetSecretValue(_ context.Context, _ string, name string, key string) (string, error) {
	if f.secretErr != nil {
		return "", f.secretErr
	}
	value, ok := f.secretData[name+"/"+key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key %q", name, key)
	}
	return value, nil
}

// writeManifestDir writes all eleven bootstrap manifests. Every file holds a
// single config map named after the file so apply order is observable.
func writeManifestDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range manifest.Files {
		doc := fmt.Sprintf("apiVersion: v1\nkind: ConfigMap\nmetadata:\n  name: %s\n  namespace: argocd\n", strings.TrimSuffix(name, ".yaml"))
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(doc), 0o600))
	}
	return dir
}

func testOptions(dir string) Options {
	opts := DefaultOptions()
	opts.ManifestDir = dir
	opts.RetryBackoff = ConstantBackoff{}
	opts.ConfigMapSettle = 0
	opts.SecretSettle = 0
	opts.ServiceSettle = 0
	opts.DeployGrace = 0
	opts.RestartGrace = 0
	opts.PodPollInterval = time.Millisecond
	opts.PodWaitBudget = 20 * time.Millisecond
	opts.RepoSecretSettle = 0
	opts.FinalWaitBudget = 20 * time.Millisecond
	opts.FinalTimeoutGrace = 0
	opts.ReapplySettle = 0
	opts.ValidationGrace = 0
	return opts
}

func healthyDeployments() map[string]*appsv1.Deployment {
	deployments := map[string]*appsv1.Deployment{}
	for _, name := range DefaultOptions().Deployments {
		deployments[name] = testingutils.NewDeployment("argocd", name, 1, 1)
	}
	return deployments
}

func readyPods() []corev1.Pod {
	return []corev1.Pod{
		*testingutils.NewPod("argocd", "argocd-server-abc", corev1.PodRunning, true),
		*testingutils.NewPod("argocd", "argocd-repo-server-abc", corev1.PodRunning, true),
	}
}

func newTestBootstrapper(client *fakeClient, opts Options) (*Bootstrapper, *bytes.Buffer) {
	out := &bytes.Buffer{}
	log := textlogger.NewLogger(textlogger.NewConfig())
	return New(client, log, opts, WithOutput(out)), out
}

func TestRun_HappyPath(t *testing.T) {
	dir := writeManifestDir(t)
	client := &fakeClient{
		deployments: healthyDeployments(),
		podBatches:  [][]corev1.Pod{readyPods()},
		secretData:  map[string]string{"argocd-initial-admin-secret/password": "s3cret"},
	}
	b, out := newTestBootstrapper(client, testOptions(dir))

	err := b.Run(context.Background())
	require.NoError(t, err, spew.Sdump(client.applied))

	// Every manifest applied, deployments twice (retry loop + final re-apply).
	assert.Len(t, client.applied, len(manifest.Files)+1)
	assert.Equal(t, "configmap/00-namespace", client.applied[0])
	assert.Empty(t, client.restarted)
	assert.Contains(t, out.String(), "s3cret")
	assert.Contains(t, out.String(), "Username: admin")
}

func TestRun_PreflightFailureAppliesNothing(t *testing.T) {
	dir := t.TempDir()
	client := &fakeClient{}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "00-namespace.yaml")
	assert.Contains(t, err.Error(), "10-repo-secret.yaml")
	assert.Empty(t, client.applied)
}

func TestRun_InfrastructureApplyFailureAborts(t *testing.T) {
	dir := writeManifestDir(t)
	client := &fakeClient{applyErrOn: "configmap/04-rbac"}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.Run(context.Background())
	require.Error(t, err)
	// Files before the failing one were applied, nothing after it.
	assert.Equal(t, []string{
		"configmap/00-namespace",
		"configmap/01-crd-applications",
		"configmap/02-crd-appprojects",
		"configmap/03-crd-applicationsets",
	}, client.applied)
}

func TestRun_UnhealthyDeploymentIsRestarted(t *testing.T) {
	dir := writeManifestDir(t)
	deployments := healthyDeployments()
	deployments["argocd-repo-server"] = testingutils.NewDeployment("argocd", "argocd-repo-server", 1, 0)
	client := &fakeClient{
		deployments: deployments,
		podBatches:  [][]corev1.Pod{readyPods()},
		secretData:  map[string]string{"argocd-initial-admin-secret/password": "s3cret"},
	}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"argocd-repo-server"}, client.restarted)
}

func TestRun_MissingDeploymentIsSkipped(t *testing.T) {
	dir := writeManifestDir(t)
	deployments := healthyDeployments()
	delete(deployments, "argocd-dex-server")
	client := &fakeClient{
		deployments: deployments,
		podBatches:  [][]corev1.Pod{readyPods()},
		secretData:  map[string]string{"argocd-initial-admin-secret/password": "s3cret"},
	}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, client.restarted)
}

func TestRun_RetryLoopExhausts(t *testing.T) {
	dir := writeManifestDir(t)
	pending := []corev1.Pod{*testingutils.NewPod("argocd", "argocd-server-abc", corev1.PodPending, false)}
	client := &fakeClient{
		deployments: healthyDeployments(),
		podBatches:  [][]corev1.Pod{pending},
	}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "3 attempts")

	// Deployments manifest applied once per attempt, infra applied once.
	count := 0
	for _, key := range client.applied {
		if key == "configmap/08-deployments" {
			count++
		}
	}
	assert.Equal(t, 3, count)
}

func TestRun_NoPodsCreatedFailsRetryLoop(t *testing.T) {
	dir := writeManifestDir(t)
	client := &fakeClient{deployments: healthyDeployments()}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no pods were created")
}

func TestValidate_PartialThenReady(t *testing.T) {
	dir := writeManifestDir(t)
	starting := []corev1.Pod{
		*testingutils.NewPod("argocd", "argocd-server-abc", corev1.PodRunning, true),
		*testingutils.NewWaitingPod("argocd", "argocd-repo-server-abc", "ContainerCreating"),
	}
	client := &fakeClient{
		podBatches: [][]corev1.Pod{starting, readyPods()},
		secretData: map[string]string{"argocd-initial-admin-secret/password": "s3cret"},
	}
	b, out := newTestBootstrapper(client, testOptions(dir))

	err := b.validate(context.Background())
	require.NoError(t, err)
	assert.Contains(t, out.String(), "s3cret")
}

func TestValidate_PartialThenStillNotReady(t *testing.T) {
	dir := writeManifestDir(t)
	starting := []corev1.Pod{
		*testingutils.NewPod("argocd", "argocd-server-abc", corev1.PodRunning, true),
		*testingutils.NewWaitingPod("argocd", "argocd-repo-server-abc", "ContainerCreating"),
	}
	client := &fakeClient{
		podBatches: [][]corev1.Pod{starting, starting},
	}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after extended wait")
}

func TestValidate_FailedPodFailsImmediately(t *testing.T) {
	dir := writeManifestDir(t)
	pods := []corev1.Pod{
		*testingutils.NewPod("argocd", "argocd-server-abc", corev1.PodRunning, true),
		*testingutils.NewWaitingPod("argocd", "argocd-repo-server-abc", "CrashLoopBackOff"),
	}
	client := &fakeClient{podBatches: [][]corev1.Pod{pods}}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed or unknown")
}

func TestValidate_CredentialFetchFailure(t *testing.T) {
	dir := writeManifestDir(t)
	client := &fakeClient{
		podBatches: [][]corev1.Pod{readyPods()},
		secretErr:  errors.New("secret not found"),
	}
	b, _ := newTestBootstrapper(client, testOptions(dir))

	err := b.validate(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "admin credential")
}

func TestConstantBackoff(t *testing.T) {
	backoff := ConstantBackoff{Interval: 30 * time.Second}
	assert.Equal(t, 30*time.Second, backoff.Delay(1))
	assert.Equal(t, 30*time.Second, backoff.Delay(2))
}
