package handeyecal

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"

	"github.com/erh/vmodutils"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/resource"
	generic "go.viam.com/rdk/services/generic"
)

// IsCommand reports whether name is a CLI subcommand.
func IsCommand(name string) bool {
	return slices.Contains(Commands, name)
}

// RunCLI runs the CLI mode, connecting to a remote machine and executing a command.
func RunCLI(subcommand string, args []string) {
	err := runCLI(subcommand, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runCLI(subcommand string, args []string) error {
	ctx := context.Background()
	logger := logging.NewLogger("hand-eye-calibration")

	fs := flag.NewFlagSet(subcommand, flag.ExitOnError)
	host := fs.String("host", "", "machine host address (required)")
	debug := fs.Bool("debug", false, "enable debug logging")

	// Config overrides
	armName := fs.String("arm", "arm", "arm component name")
	baseFrame := fs.String("base-frame", "world", "robot base frame")
	eefFrame := fs.String("eef-frame", "", "end-effector frame (defaults to the arm)")
	sensorFrame := fs.String("sensor-frame", "camera", "sensor frame")
	objectFrame := fs.String("object-frame", "", "calibration target frame")
	mountType := fs.String("mount-type", "eye_to_hand", "eye_to_hand or eye_in_hand")
	solverID := fs.String("solver", "", "solver id, provider/algorithm")
	samplesFile := fs.String("samples", "", "samples file, loaded before and saved after the command")
	jointStatesFile := fs.String("joint-states", "", "joint states file, loaded before and saved after the command")
	historyDB := fs.String("history-db", "", "calibration history database")

	// Command arguments
	path := fs.String("path", "", "file for save/load commands")
	wait := fs.Bool("wait", true, "wait for plan/execute to finish")
	limit := fs.Int("limit", 10, "number of history entries")
	newMount := fs.String("mount", "", "mount type for set_mount_type")
	target := fs.Int("target", 0, "joint state index to plan to for plan/execute")

	if err := fs.Parse(args); err != nil {
		return err
	}

	if *debug {
		logger.SetLevel(logging.DEBUG)
	}

	if *host == "" {
		return fmt.Errorf("--host is required")
	}

	cfg := Config{
		Arm:             *armName,
		BaseFrame:       *baseFrame,
		EEFFrame:        *eefFrame,
		SensorFrame:     *sensorFrame,
		ObjectFrame:     *objectFrame,
		MountType:       *mountType,
		Solver:          *solverID,
		SamplesFile:     *samplesFile,
		JointStatesFile: *jointStatesFile,
		HistoryDB:       *historyDB,
	}
	if _, _, err := cfg.Validate("cli"); err != nil {
		return err
	}

	logger.Infof("Connecting to %s...", *host)
	machine, err := vmodutils.ConnectToHostFromCLIToken(ctx, *host, logger)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer machine.Close(ctx)

	deps, err := vmodutils.MachineToDependencies(machine)
	if err != nil {
		return fmt.Errorf("failed to get dependencies: %w", err)
	}

	svc, err := NewCalibration(ctx, deps, generic.Named("hand-eye-calibration"), &cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}
	defer svc.Close(ctx)

	if err := restoreFiles(ctx, svc, &cfg, logger); err != nil {
		return err
	}

	// each invocation starts a fresh session, so execute plans first
	if subcommand == "execute" {
		if _, err := svc.DoCommand(ctx, map[string]interface{}{"command": "plan", "target": *target, "wait": true}); err != nil {
			return fmt.Errorf("plan: %w", err)
		}
	}

	result, err := svc.DoCommand(ctx, map[string]interface{}{
		"command":    subcommand,
		"target":     *target,
		"path":       *path,
		"wait":       *wait,
		"limit":      *limit,
		"mount_type": *newMount,
		"solver":     *solverID,
	})
	if err != nil {
		return err
	}

	if err := persistFiles(ctx, svc, subcommand, &cfg, result); err != nil {
		return err
	}

	output, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}
	fmt.Println(string(output))

	return nil
}

// restoreFiles loads the sample and joint state files that exist, so that
// consecutive CLI invocations build on each other.
func restoreFiles(ctx context.Context, svc resource.Resource, cfg *Config, logger logging.Logger) error {
	for command, file := range map[string]string{
		"load_samples":      cfg.SamplesFile,
		"load_joint_states": cfg.JointStatesFile,
	} {
		if file == "" {
			continue
		}
		if _, err := os.Stat(file); errors.Is(err, os.ErrNotExist) {
			logger.Debugf("%s does not exist yet", file)
			continue
		}
		if _, err := svc.DoCommand(ctx, map[string]interface{}{"command": command}); err != nil {
			return fmt.Errorf("%s: %w", command, err)
		}
	}
	return nil
}

var mutatingCommands = []string{"take_sample", "delete_latest_sample", "clear_samples", "execute"}

func persistFiles(ctx context.Context, svc resource.Resource, subcommand string, cfg *Config, result map[string]interface{}) error {
	if !slices.Contains(mutatingCommands, subcommand) {
		return nil
	}
	if cfg.SamplesFile != "" {
		if _, err := svc.DoCommand(ctx, map[string]interface{}{"command": "save_samples"}); err != nil {
			return fmt.Errorf("save_samples: %w", err)
		}
	}
	// joint states only save when they are consistent
	if n, _ := result["joint_states"].(int); cfg.JointStatesFile != "" && n > 0 {
		if _, err := svc.DoCommand(ctx, map[string]interface{}{"command": "save_joint_states"}); err != nil {
			return fmt.Errorf("save_joint_states: %w", err)
		}
	}
	return nil
}
