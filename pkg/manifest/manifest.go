// Package manifest knows the fixed, ordered set of manifest files the
// bootstrap applies and how to load them into unstructured objects.
package manifest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	utilyaml "k8s.io/apimachinery/pkg/util/yaml"
)

// Files lists the bootstrap manifests in apply order. The order is
// significant: namespace first, then CRDs, RBAC, config, secrets, services,
// deployments, network policies, and finally the repository secret.
var Files = []string{
	"00-namespace.yaml",
	"01-crd-applications.yaml",
	"02-crd-appprojects.yaml",
	"03-crd-applicationsets.yaml",
	"04-rbac.yaml",
	"05-configmaps.yaml",
	"06-secrets.yaml",
	"07-services.yaml",
	"08-deployments.yaml",
	"09-network-policies.yaml",
	"10-repo-secret.yaml",
}

// Indexes into Files marking the phase boundaries of the bootstrap.
const (
	// InfrastructureEnd is one past the last infrastructure manifest.
	InfrastructureEnd = 8
	// DeploymentsIndex is the manifest applied by the deploy-retry loop.
	DeploymentsIndex = 8
	// RemainingStart is the first manifest applied after the deploy-retry loop.
	RemainingStart = 9
	// RepoSecretIndex is the repository secret, which triggers reconciliation
	// in Argo CD once applied.
	RepoSecretIndex = 10
)

const yamlBufferSize = 4096

// Preflight verifies that every bootstrap manifest exists in dir. All missing
// names are collected into a single error so the operator sees the full list
// at once.
func Preflight(dir string) error {
	var missing []string
	for _, name := range Files {
		_, err := os.Stat(filepath.Join(dir, name))
		if err != nil {
			if os.IsNotExist(err) {
				missing = append(missing, name)
				continue
			}
			return fmt.Errorf("stat manifest %s: %w", name, err)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing manifest files: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Load reads a manifest file and decodes every YAML document in it. Empty
// documents are skipped. Documents are returned sorted in safe apply order.
func Load(path string) ([]*unstructured.Unstructured, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open manifest %s: %w", path, err)
	}
	defer file.Close()

	var objs []*unstructured.Unstructured
	decoder := utilyaml.NewYAMLOrJSONDecoder(file, yamlBufferSize)
	for {
		obj := &unstructured.Unstructured{}
		err := decoder.Decode(&obj.Object)
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("decode manifest %s: %w", path, err)
		}
		if len(obj.Object) == 0 {
			continue
		}
		objs = append(objs, obj)
	}

	SortByKind(objs)
	return objs, nil
}
