package main

import (
	"github.com/Paintersrp/forkrun/internal/cli"
	"github.com/Paintersrp/forkrun/internal/metrics"
	"github.com/Paintersrp/forkrun/internal/runtime"
)

func main() {
	runtime.Init()
	metrics.EmitBuildInfo()
	cli.Execute()
}
