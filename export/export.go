// Package export renders a calibration as a static transform publisher launch file.
package export

import (
	"path/filepath"
	"strconv"
	"strings"
	"text/template"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"

	"handeyecal/rigid"
)

// Format is a launch file flavour.
type Format int

// Supported launch file formats.
const (
	Python Format = iota
	XML
	YAML
)

func (f Format) String() string {
	switch f {
	case Python:
		return "python"
	case XML:
		return "xml"
	case YAML:
		return "yaml"
	default:
		return "unknown"
	}
}

var (
	// ErrEmptyPath is returned for an empty file name.
	ErrEmptyPath = errors.New("file name is empty")
	// ErrUnknownFormat is returned for a file name with an unsupported extension.
	ErrUnknownFormat = errors.New(
		"unknown file type, only `.py`, `.xml`, and `.yaml`/`.yml` are supported for launch scripts")
)

// ResolvePath completes a file name and picks the format from its extension.
// Names without a dot get ".launch.py" and names ending in ".launch" get ".py".
func ResolvePath(name string) (string, Format, error) {
	if name == "" {
		return "", 0, ErrEmptyPath
	}
	if !strings.Contains(filepath.Base(name), ".") {
		name += ".launch.py"
	} else if strings.HasSuffix(name, ".launch") {
		name += ".py"
	}
	switch {
	case strings.HasSuffix(name, ".py"):
		return name, Python, nil
	case strings.HasSuffix(name, ".xml"):
		return name, XML, nil
	case strings.HasSuffix(name, ".yaml"), strings.HasSuffix(name, ".yml"):
		return name, YAML, nil
	default:
		return "", 0, errors.Wrap(ErrUnknownFormat, name)
	}
}

// Calibration holds the values written to a launch file.
type Calibration struct {
	FromFrame   string
	ToFrame     string
	Translation r3.Vector
	Quaternion  quat.Number
	EulerXYZ    r3.Vector
	MountLabel  string
}

// FromTransform fills the numeric fields of a Calibration from a solved transform.
func FromTransform(from, to string, tf rigid.Transform, mountLabel string) Calibration {
	return Calibration{
		FromFrame:   from,
		ToFrame:     to,
		Translation: tf.Translation,
		Quaternion:  tf.Rotation,
		EulerXYZ:    tf.EulerXYZ(),
		MountLabel:  mountLabel,
	}
}

var templates = map[Format]*template.Template{
	Python: mustParse("python", pythonTemplate),
	XML:    mustParse("xml", xmlTemplate),
	YAML:   mustParse("yaml", yamlTemplate),
}

func mustParse(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(template.FuncMap{"num": num}).Parse(text))
}

// num formats like a default C++ ostream: six significant digits.
func num(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// Render produces the launch file text.
func Render(f Format, c Calibration) (string, error) {
	tmpl, ok := templates[f]
	if !ok {
		return "", errors.Wrap(ErrUnknownFormat, f.String())
	}
	var sb strings.Builder
	if err := tmpl.Execute(&sb, c); err != nil {
		return "", errors.Wrapf(err, "rendering %s launch file", f)
	}
	return sb.String(), nil
}

const pythonTemplate = `""" Static transform publisher acquired via MoveIt 2 hand-eye calibration """
""" {{.MountLabel}}: {{.FromFrame}} -> {{.ToFrame}} """
from launch import LaunchDescription
from launch_ros.actions import Node


def generate_launch_description() -> LaunchDescription:
    nodes = [
        Node(
            package="tf2_ros",
            executable="static_transform_publisher",
            output="log",
            arguments=[
                "--frame-id",
                "{{.FromFrame}}",
                "--child-frame-id",
                "{{.ToFrame}}",
                "--x",
                "{{num .Translation.X}}",
                "--y",
                "{{num .Translation.Y}}",
                "--z",
                "{{num .Translation.Z}}",
                "--qx",
                "{{num .Quaternion.Imag}}",
                "--qy",
                "{{num .Quaternion.Jmag}}",
                "--qz",
                "{{num .Quaternion.Kmag}}",
                "--qw",
                "{{num .Quaternion.Real}}",
                # "--roll",
                # "{{num .EulerXYZ.X}}",
                # "--pitch",
                # "{{num .EulerXYZ.Y}}",
                # "--yaw",
                # "{{num .EulerXYZ.Z}}",
            ],
        ),
    ]
    return LaunchDescription(nodes)
`

const xmlTemplate = `<!-- Static transform publisher acquired via MoveIt 2 hand-eye calibration -->
<!-- {{.MountLabel}}: {{.FromFrame}} -> {{.ToFrame}} -->

<launch>
    <node
        pkg="tf2_ros"
        exec="static_transform_publisher"
        output="log"
        args="
            --frame-id {{.FromFrame}}
            --child-frame-id {{.ToFrame}}
            --x {{num .Translation.X}}
            --y {{num .Translation.Y}}
            --z {{num .Translation.Z}}
            --qx {{num .Quaternion.Imag}}
            --qy {{num .Quaternion.Jmag}}
            --qz {{num .Quaternion.Kmag}}
            --qw {{num .Quaternion.Real}}
        "
    />
    <!--
            roll {{num .EulerXYZ.X}}
            pitch {{num .EulerXYZ.Y}}
            yaw {{num .EulerXYZ.Z}}
    -->
</launch>
`

const yamlTemplate = `# Static transform publisher acquired via MoveIt 2 hand-eye calibration
# {{.MountLabel}}: {{.FromFrame}} -> {{.ToFrame}}

launch:
    - node:
          pkg: tf2_ros
          exec: static_transform_publisher
          output: log
          args:
              "
              --frame-id {{.FromFrame}}
              --child-frame-id {{.ToFrame}}
              --x {{num .Translation.X}}
              --y {{num .Translation.Y}}
              --z {{num .Translation.Z}}
              --qx {{num .Quaternion.Imag}}
              --qy {{num .Quaternion.Jmag}}
              --qz {{num .Quaternion.Kmag}}
              --qw {{num .Quaternion.Real}}
              "
              # --roll {{num .EulerXYZ.X}}
              # --pitch {{num .EulerXYZ.Y}}
              # --yaw {{num .EulerXYZ.Z}}
`
