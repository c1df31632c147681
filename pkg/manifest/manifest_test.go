package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeManifests(t *testing.T, dir string, names []string) {
	t.Helper()
	for _, name := range names {
		err := os.WriteFile(filepath.Join(dir, name), []byte("kind: ConfigMap\napiVersion: v1\nmetadata:\n  name: x\n"), 0o600)
		require.NoError(t, err)
	}
}

func TestPreflight_AllPresent(t *testing.T) {
	dir := t.TempDir()
	writeManifests(t, dir, Files)

	assert.NoError(t, Preflight(dir))
}

func TestPreflight_ReportsEveryMissingFile(t *testing.T) {
	dir := t.TempDir()
	writeManifests(t, dir, Files[2:])

	err := Preflight(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "00-namespace.yaml")
	assert.Contains(t, err.Error(), "01-crd-applications.yaml")
	assert.NotContains(t, err.Error(), "04-rbac.yaml")
}

func TestPreflight_EmptyDir(t *testing.T) {
	err := Preflight(t.TempDir())
	require.Error(t, err)
	for _, name := range Files {
		assert.Contains(t, err.Error(), name)
	}
}

func TestLoad_MultiDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "05-configmaps.yaml")
	content := `
apiVersion: v1
kind: ConfigMap
metadata:
  name: argocd-cm
  namespace: argocd
---
apiVersion: v1
kind: ConfigMap
metadata:
  name: argocd-rbac-cm
  namespace: argocd
---
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	objs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, objs, 2)
	assert.Equal(t, "argocd-cm", objs[0].GetName())
	assert.Equal(t, "argocd-rbac-cm", objs[1].GetName())
}

func TestLoad_SortsIntoApplyOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "00-namespace.yaml")
	content := `
apiVersion: apps/v1
kind: Deployment
metadata:
  name: argocd-server
  namespace: argocd
---
apiVersion: v1
kind: Namespace
metadata:
  name: argocd
---
apiVersion: v1
kind: Service
metadata:
  name: argocd-server
  namespace: argocd
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	objs, err := Load(path)
	require.NoError(t, err)
	require.Len(t, objs, 3)
	assert.Equal(t, "Namespace", objs[0].GetKind())
	assert.Equal(t, "Service", objs[1].GetKind())
	assert.Equal(t, "Deployment", objs[2].GetKind())
}

func TestLoad_BadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{not yaml:::"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func Test_kindOrder(t *testing.T) {
	assert.Equal(t, -35, kindOrder["Namespace"])
	assert.Equal(t, -1, kindOrder["APIService"])
	assert.Equal(t, 0, kindOrder["Application"])
}

func TestFiles_PhaseBoundaries(t *testing.T) {
	require.Len(t, Files, 11)
	assert.Equal(t, "08-deployments.yaml", Files[DeploymentsIndex])
	assert.Equal(t, "09-network-policies.yaml", Files[RemainingStart])
	assert.Equal(t, "10-repo-secret.yaml", Files[RepoSecretIndex])
}
