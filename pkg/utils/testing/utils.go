package testing

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/yaml"
)

// Unstructured parses a YAML document into an unstructured object, panicking
// on bad input. Only for use in tests.
func Unstructured(text string) *unstructured.Unstructured {
	un := &unstructured.Unstructured{}
	err := yaml.Unmarshal([]byte(text), &un.Object)
	if err != nil {
		panic(err)
	}
	return un
}

// ToUnstructured converts a typed object into an unstructured one, panicking
// on conversion failure. Only for use in tests.
func ToUnstructured(obj runtime.Object) *unstructured.Unstructured {
	data, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
	if err != nil {
		panic(err)
	}
	return &unstructured.Unstructured{Object: data}
}

func NewService() *unstructured.Unstructured {
	return Unstructured(`
apiVersion: v1
kind: Service
metadata:
  name: my-service
spec:
  ports:
  - port: 443
    targetPort: 8080
`)
}

func NewConfigMap() *unstructured.Unstructured {
	return Unstructured(`
apiVersion: v1
kind: ConfigMap
metadata:
  name: my-configmap
data:
  foo: bar
`)
}
