package handeyecal

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"github.com/samber/lo"

	"handeyecal/calibration"
	"handeyecal/history"
	"handeyecal/solver"
)

// Commands lists every DoCommand command, in the order the CLI prints them.
var Commands = []string{
	"take_sample",
	"delete_latest_sample",
	"clear_samples",
	"solve",
	"save_samples",
	"load_samples",
	"save_joint_states",
	"load_joint_states",
	"save_calibration",
	"plan",
	"execute",
	"skip",
	"set_mount_type",
	"set_solver",
	"list_solvers",
	"history",
	"status",
}

type request struct {
	Command   string `json:"command"`
	Path      string `json:"path"`
	MountType string `json:"mount_type"`
	Solver    string `json:"solver"`
	Wait      bool   `json:"wait"`
	Limit     int    `json:"limit"`
	Target    *int   `json:"target"`
}

func decodeRequest(cmd map[string]interface{}) (request, error) {
	var req request
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &req,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return request{}, err
	}
	if err := decoder.Decode(cmd); err != nil {
		return request{}, fmt.Errorf("invalid command arguments: %w", err)
	}
	if req.Command == "" {
		return request{}, fmt.Errorf("missing or invalid 'command' field")
	}
	return req, nil
}

func (s *handEyeCalibration) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	req, err := decodeRequest(cmd)
	if err != nil {
		return nil, err
	}
	return handleCommand(ctx, s.session, s.journal, s.cfg, req)
}

func handleCommand(
	ctx context.Context, session *calibration.Session, journal *history.DB, cfg *Config, req request,
) (map[string]interface{}, error) {
	switch req.Command {
	case "take_sample":
		if err := session.TakeSample(ctx); err != nil {
			return nil, fmt.Errorf("sample not taken: %w", err)
		}
	case "delete_latest_sample":
		if err := session.DeleteLatestSample(ctx); err != nil {
			return nil, err
		}
	case "clear_samples":
		session.ClearSamples()
	case "solve":
		if _, err := session.Solve(ctx); err != nil {
			return nil, fmt.Errorf("solve failed: %w", err)
		}
	case "save_samples":
		path, err := pathOrDefault(req.Path, cfg.SamplesFile, "samples_file")
		if err != nil {
			return nil, err
		}
		if err := session.SaveSamples(path); err != nil {
			return nil, err
		}
	case "load_samples":
		path, err := pathOrDefault(req.Path, cfg.SamplesFile, "samples_file")
		if err != nil {
			return nil, err
		}
		if err := session.LoadSamples(ctx, path); err != nil {
			return nil, err
		}
	case "save_joint_states":
		path, err := pathOrDefault(req.Path, cfg.JointStatesFile, "joint_states_file")
		if err != nil {
			return nil, err
		}
		if err := session.SaveJointStates(path); err != nil {
			return nil, err
		}
	case "load_joint_states":
		path, err := pathOrDefault(req.Path, cfg.JointStatesFile, "joint_states_file")
		if err != nil {
			return nil, err
		}
		if err := session.LoadJointStates(path); err != nil {
			return nil, err
		}
	case "save_calibration":
		written, err := session.ExportCalibration(req.Path)
		if err != nil {
			return nil, err
		}
		resp := statusResponse(session.Snapshot())
		resp["path"] = written
		return resp, nil
	case "plan":
		if req.Target != nil {
			session.SetProgress(*req.Target)
		}
		if err := session.PlanNext(ctx); err != nil {
			return nil, err
		}
		if req.Wait {
			if err := session.WaitPlan(ctx); err != nil {
				return nil, err
			}
		}
	case "execute":
		if err := session.Execute(ctx); err != nil {
			return nil, err
		}
		if req.Wait {
			if err := session.WaitExecute(ctx); err != nil {
				return nil, err
			}
		}
	case "skip":
		session.Skip()
	case "set_mount_type":
		mount, err := solver.ParseMountType(req.MountType)
		if err != nil {
			return nil, err
		}
		session.SetMountType(mount)
	case "set_solver":
		if err := session.SelectSolver(req.Solver); err != nil {
			return nil, err
		}
	case "list_solvers":
		return map[string]interface{}{"solvers": lo.ToAnySlice(session.Solvers())}, nil
	case "history":
		if journal == nil {
			return nil, fmt.Errorf("history_db is not configured")
		}
		entries, err := journal.Recent(ctx, req.Limit)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{
			"calibrations": lo.Map(entries, func(e history.Entry, _ int) interface{} { return historyEntry(e) }),
		}, nil
	case "status":
	default:
		return nil, fmt.Errorf("unknown command: %s", req.Command)
	}
	return statusResponse(session.Snapshot()), nil
}

func pathOrDefault(path, fallback, key string) (string, error) {
	if path != "" {
		return path, nil
	}
	if fallback != "" {
		return fallback, nil
	}
	return "", fmt.Errorf("'path' is required when %s is not configured", key)
}

func statusResponse(snap calibration.Snapshot) map[string]interface{} {
	resp := map[string]interface{}{
		"status":          snap.Status.Message,
		"level":           string(snap.Status.Level),
		"samples":         snap.Samples,
		"joint_states":    snap.JointStates,
		"joint_names":     lo.ToAnySlice(snap.JointNames),
		"progress":        snap.Progress,
		"state":           snap.State,
		"plan_enabled":    snap.PlanEnabled,
		"execute_enabled": snap.ExecuteEnabled,
		"mount_type":      snap.MountType.String(),
		"solver":          snap.SolverID,
		"frames": map[string]interface{}{
			"base":   snap.Frames.Base,
			"eef":    snap.Frames.EEF,
			"sensor": snap.Frames.Sensor,
			"object": snap.Frames.Object,
		},
	}
	if snap.LastFailure != "" {
		resp["last_failure"] = snap.LastFailure
	}
	if snap.Result != nil {
		resp["result"] = resultResponse(*snap.Result)
	}
	return resp
}

func resultResponse(res solver.Result) map[string]interface{} {
	t, q := res.CameraRobot.Translation, res.CameraRobot.Rotation
	euler := res.CameraRobot.EulerXYZ()
	ov := res.CameraRobot.Pose(mmPerMetre).Orientation().OrientationVectorDegrees()
	return map[string]interface{}{
		"solver":             res.SolverID,
		"mount_type":         res.Mount.String(),
		"samples":            res.Samples,
		"translation_m":      []interface{}{t.X, t.Y, t.Z},
		"quaternion_xyzw":    []interface{}{q.Imag, q.Jmag, q.Kmag, q.Real},
		"euler_xyz_rad":      []interface{}{euler.X, euler.Y, euler.Z},
		"orientation_vector": map[string]interface{}{"o_x": ov.OX, "o_y": ov.OY, "o_z": ov.OZ, "theta": ov.Theta},
		"translation_error":  res.Error.Translation,
		"rotation_error_rad": res.Error.Rotation,
	}
}

func historyEntry(e history.Entry) map[string]interface{} {
	t, q := e.Transform.Translation, e.Transform.Rotation
	return map[string]interface{}{
		"id":                 e.ID,
		"created_at":         e.CreatedAt.UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"solver":             e.SolverID,
		"mount_type":         e.Mount,
		"from_frame":         e.FromFrame,
		"to_frame":           e.ToFrame,
		"samples":            e.Samples,
		"translation_m":      []interface{}{t.X, t.Y, t.Z},
		"quaternion_xyzw":    []interface{}{q.Imag, q.Jmag, q.Kmag, q.Real},
		"translation_error":  e.TranslationError,
		"rotation_error_rad": e.RotationError,
	}
}
