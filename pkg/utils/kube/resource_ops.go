package kube

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/meta"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/types"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
	"k8s.io/kubectl/pkg/util/podutils"
)

// Annotation kubectl sets on the pod template to trigger a rolling restart.
const restartedAtAnnotation = "kubectl.kubernetes.io/restartedAt"

func (c *client) Apply(ctx context.Context, obj *unstructured.Unstructured) (string, error) {
	span := c.tracer.StartSpan("Apply")
	span.SetBaggageItem("kind", obj.GetKind())
	span.SetBaggageItem("name", obj.GetName())
	defer span.Finish()

	resource, err := c.resourceFor(obj)
	if err != nil {
		return "", err
	}

	created, err := resource.Create(ctx, obj, metav1.CreateOptions{})
	if err == nil {
		c.log.V(1).Info("Created resource", "kind", created.GetKind(), "name", created.GetName())
		return fmt.Sprintf("%s/%s created", strings.ToLower(obj.GetKind()), obj.GetName()), nil
	}
	if !apierrors.IsAlreadyExists(err) {
		return "", fmt.Errorf("create %s/%s: %w", strings.ToLower(obj.GetKind()), obj.GetName(), err)
	}

	patch, err := mergePatch(obj)
	if err != nil {
		return "", err
	}

	patched, err := resource.Patch(ctx, obj.GetName(), types.MergePatchType, patch, metav1.PatchOptions{})
	if err != nil {
		return "", fmt.Errorf("patch %s/%s: %w", strings.ToLower(obj.GetKind()), obj.GetName(), err)
	}
	c.log.V(1).Info("Patched resource", "kind", patched.GetKind(), "name", patched.GetName())
	return fmt.Sprintf("%s/%s configured", strings.ToLower(obj.GetKind()), obj.GetName()), nil
}

// mergePatch builds the merge-patch body for an object that already exists:
// the desired manifest itself, stripped of status and of the metadata fields
// the server owns. The patch only sets what the manifest declares and never
// carries a null, so server-populated fields (uid, creationTimestamp, a
// Service's clusterIP) survive a re-apply instead of being rejected as
// immutable-field deletions.
func mergePatch(desired *unstructured.Unstructured) ([]byte, error) {
	target := desired.DeepCopy()
	unstructured.RemoveNestedField(target.Object, "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(target.Object, "metadata", "resourceVersion")
	unstructured.RemoveNestedField(target.Object, "metadata", "uid")
	unstructured.RemoveNestedField(target.Object, "metadata", "generation")
	unstructured.RemoveNestedField(target.Object, "metadata", "managedFields")
	unstructured.RemoveNestedField(target.Object, "status")

	patch, err := json.Marshal(target.Object)
	if err != nil {
		return nil, fmt.Errorf("marshal merge patch: %w", err)
	}
	return patch, nil
}

func (c *client) resourceFor(obj *unstructured.Unstructured) (dynamic.ResourceInterface, error) {
	gvk := obj.GroupVersionKind()
	mapping, err := c.mapper.RESTMapping(gvk.GroupKind(), gvk.Version)
	if err != nil {
		return nil, fmt.Errorf("map %s to a resource: %w", gvk, err)
	}

	if mapping.Scope.Name() == meta.RESTScopeNameNamespace {
		return c.dynamic.Resource(mapping.Resource).Namespace(obj.GetNamespace()), nil
	}
	return c.dynamic.Resource(mapping.Resource), nil
}

func (c *client) GetPods(ctx context.Context, namespace string) ([]corev1.Pod, error) {
	list, err := c.clientset.CoreV1().Pods(namespace).List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list pods in %s: %w", namespace, err)
	}
	return list.Items, nil
}

func (c *client) GetDeployment(ctx context.Context, namespace string, name string) (*appsv1.Deployment, error) {
	deployment, err := c.clientset.AppsV1().Deployments(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, err
	}
	return deployment, nil
}

func (c *client) RestartDeployment(ctx context.Context, namespace string, name string) error {
	span := c.tracer.StartSpan("RestartDeployment")
	span.SetBaggageItem("name", name)
	defer span.Finish()

	patch := fmt.Sprintf(
		`{"spec":{"template":{"metadata":{"annotations":{%q:%q}}}}}`,
		restartedAtAnnotation, c.clock.Now().Format(time.RFC3339),
	)
	_, err := c.clientset.AppsV1().Deployments(namespace).
		Patch(ctx, name, types.StrategicMergePatchType, []byte(patch), metav1.PatchOptions{})
	if err != nil {
		return fmt.Errorf("restart deployment %s: %w", name, err)
	}
	c.log.Info("Restarted deployment", "namespace", namespace, "name", name)
	return nil
}

func (c *client) WaitForPodsReady(ctx context.Context, namespace string, interval time.Duration, timeout time.Duration) error {
	span := c.tracer.StartSpan("WaitForPodsReady")
	span.SetBaggageItem("namespace", namespace)
	defer span.Finish()

	err := wait.PollImmediateWithContext(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		pods, err := c.GetPods(ctx, namespace)
		if err != nil {
			// Transient list errors should not abort the wait.
			return false, nil
		}
		if len(pods) == 0 {
			// An empty namespace cannot become ready; fail fast instead of
			// consuming the timeout.
			return false, fmt.Errorf("no pods found in namespace %s", namespace)
		}
		for i := range pods {
			if pods[i].Status.Phase == corev1.PodSucceeded {
				continue
			}
			if !podutils.IsPodReady(&pods[i]) {
				return false, nil
			}
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("wait for pods in %s to become ready: %w", namespace, err)
	}
	return nil
}

func (c *client) GetSecretValue(ctx context.Context, namespace string, name string, key string) (string, error) {
	secret, err := c.clientset.CoreV1().Secrets(namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return "", fmt.Errorf("get secret %s: %w", name, err)
	}
	value, ok := secret.Data[key]
	if !ok {
		return "", fmt.Errorf("secret %s has no key %q", name, key)
	}
	return string(value), nil
}
