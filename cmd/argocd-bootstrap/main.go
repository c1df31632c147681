package main

import (
	"k8s.io/klog/v2/klogr"

	"github.com/namix-io/bootstrap-engine/pkg/cmd"
	utilerrors "github.com/namix-io/bootstrap-engine/pkg/utils/errors"
)

func main() {
	err := cmd.NewBootstrapCommand().Execute()
	utilerrors.CheckError(err, klogr.New())
}
