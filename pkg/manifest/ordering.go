package manifest

import (
	"sort"

	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// kindOrder represents the correct order of Kubernetes resources within a manifest
// https://github.com/helm/helm/blob/0361dc85689e3a6d802c444e2540c92cb5842bc9/pkg/releaseutil/kind_sorter.go
var kindOrder = map[string]int{}

func init() {
	kinds := []string{
		"Namespace",
		"NetworkPolicy",
		"ResourceQuota",
		"LimitRange",
		"PodSecurityPolicy",
		"PodDisruptionBudget",
		"ServiceAccount",
		"Secret",
		"SecretList",
		"ConfigMap",
		"StorageClass",
		"PersistentVolume",
		"PersistentVolumeClaim",
		"CustomResourceDefinition",
		"ClusterRole",
		"ClusterRoleList",
		"ClusterRoleBinding",
		"ClusterRoleBindingList",
		"Role",
		"RoleList",
		"RoleBinding",
		"RoleBindingList",
		"Service",
		"DaemonSet",
		"Pod",
		"ReplicationController",
		"ReplicaSet",
		"Deployment",
		"HorizontalPodAutoscaler",
		"StatefulSet",
		"Job",
		"CronJob",
		"IngressClass",
		"Ingress",
		"APIService",
	}
	for i, kind := range kinds {
		// make sure none of the above entries are zero, we need that for custom resources
		kindOrder[kind] = i - len(kinds)
	}
}

// SortByKind sorts documents from a single manifest file into safe apply
// order:
// 1. Namespaces before objects inside them
// 2. Kind
// 3. Name
func SortByKind(objs []*unstructured.Unstructured) {
	sort.SliceStable(objs, func(i, j int) bool {
		a := objs[i]
		b := objs[j]

		// namespaces must come before objects that depend on them
		if a.GetKind() == "Namespace" && a.GroupVersionKind().Group == "" && a.GetName() == b.GetNamespace() {
			return true
		}

		// we take advantage of the fact that if the kind is not in the kindOrder map,
		// then it will return the default int value of zero, which is the highest value
		d := kindOrder[a.GetKind()] - kindOrder[b.GetKind()]
		if d != 0 {
			return d < 0
		}

		return a.GetName() < b.GetName()
	})
}
