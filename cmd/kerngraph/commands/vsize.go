package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kerngraph/kerngraph/pkg/config"
	"github.com/kerngraph/kerngraph/pkg/vsize"
)

const (
	vsizeCmdUse   = "vsize"
	vsizeCmdShort = "Map a virtual N-D launch grid onto device-legal launch sizes"
)

// NewVSizeCommand creates the vsize subcommand.
func NewVSizeCommand(configPath *string) *cobra.Command {
	var (
		globalSize []int
		localSize  []int
		maxWorkGroupSize int
		maxGridSizes     []int
		renderFuncs      bool
	)

	cmd := &cobra.Command{
		Use:   vsizeCmdUse,
		Short: vsizeCmdShort,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runVSize(*configPath, globalSize, localSize, maxWorkGroupSize, maxGridSizes, renderFuncs)
		},
	}

	cmd.Flags().IntSliceVar(&globalSize, "global-size", nil, "virtual global work size, one entry per dimension (required)")
	cmd.Flags().IntSliceVar(&localSize, "local-size", nil, "virtual local work size, one entry per dimension (optional)")
	cmd.Flags().IntVar(&maxWorkGroupSize, "max-work-group-size", 0, "device max work-group size (0: use config default)")
	cmd.Flags().IntSliceVar(&maxGridSizes, "max-grid-sizes", nil, "device max grid sizes per axis (empty: use config default)")
	cmd.Flags().BoolVar(&renderFuncs, "render-funcs", false, "print the virtual_* helper function source instead of the call sizes")

	_ = cmd.MarkFlagRequired("global-size")

	return cmd
}

func runVSize(configPath string, globalSize, localSize []int, maxWorkGroupSize int, maxGridSizes []int, renderFuncs bool) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if maxWorkGroupSize <= 0 {
		maxWorkGroupSize = cfg.Device.MaxWorkGroupSize
	}

	if len(maxGridSizes) == 0 {
		maxGridSizes = cfg.Device.MaxGridSizes
	}

	if len(localSize) == 0 {
		localSize = make([]int, len(globalSize))
		for i := range localSize {
			localSize[i] = 1
		}
	}

	device := vsize.DeviceParams{
		MaxWorkGroupSize: maxWorkGroupSize,
		MaxGridSizes:     maxGridSizes,
	}

	vs, err := vsize.New(device, globalSize, localSize)
	if err != nil {
		return fmt.Errorf("computing virtual sizes: %w", err)
	}

	if renderFuncs {
		fmt.Println(vs.RenderVSizeFuncs())
		return nil
	}

	callGlobal, callLocal := vs.GetCallSizes()
	fmt.Printf("call global size: %v\n", callGlobal)
	fmt.Printf("call local size:  %v\n", callLocal)

	return nil
}
