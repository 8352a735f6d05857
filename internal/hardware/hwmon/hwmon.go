// Package hwmon implements the hardware collaborator on top of the Linux
// hwmon sysfs interface (/sys/class/hwmon/hwmon*).
//
// Each hwmon chip becomes one node of the tree. Within a chip:
//
//   - pwm<N>        → Control, reported as a percentage (0..255 ↔ 0..100)
//   - fan<N>_input  → Fan, in RPM
//   - temp<N>_input → Temperature, millidegrees converted to °C
//
// Labels come from the matching *_label attribute when the driver exposes
// one. Writing a control switches pwm<N>_enable to manual (1); restoring it
// writes back the enable mode captured when the source was opened.
package hwmon

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/nerrad567/fancontrol-core/internal/hardware"
)

const (
	// defaultSysRoot is the sysfs mount point.
	defaultSysRoot = "/sys"

	// pwmMax is the raw full-scale pwm value.
	pwmMax = 255

	// percentMax is the control scale exposed to the registry.
	percentMax = 100

	// milliPerUnit converts millidegrees to degrees.
	milliPerUnit = 1000

	// enableManual is the pwm<N>_enable value for software control.
	enableManual = "1"
)

// ErrNotOpened is returned by Update before Open has succeeded.
var ErrNotOpened = errors.New("hwmon: source not opened")

var attrPattern = regexp.MustCompile(`^(pwm|fan|temp)(\d+)(_input)?$`)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

// Config configures the hwmon source.
type Config struct {
	// SysRoot is the sysfs root. Default: "/sys".
	SysRoot string
}

// Source reads and drives hwmon attributes.
type Source struct {
	sysRoot string
	logger  Logger

	mu      sync.Mutex
	opened  bool
	sensors []*sensor
}

// Ensure Source implements hardware.Source.
var _ hardware.Source = (*Source)(nil)

// New creates a hwmon source. Nothing is read until Open.
func New(cfg Config) *Source {
	root := cfg.SysRoot
	if root == "" {
		root = defaultSysRoot
	}
	return &Source{sysRoot: root, logger: noopLogger{}}
}

// SetLogger sets the logger for the source.
func (s *Source) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// Open enumerates every hwmon chip and its sensors.
func (s *Source) Open(ctx context.Context) (*hardware.Tree, error) {
	base := filepath.Join(s.sysRoot, "class", "hwmon")
	entries, err := os.ReadDir(base)
	if err != nil {
		return nil, fmt.Errorf("hwmon: reading %s: %w", base, err)
	}

	var chips []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "hwmon") {
			chips = append(chips, e.Name())
		}
	}
	sort.Slice(chips, func(i, j int) bool {
		return chipNumber(chips[i]) < chipNumber(chips[j])
	})

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sensors = nil
	tree := &hardware.Tree{}
	for _, chip := range chips {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node, err := s.openChip(filepath.Join(base, chip))
		if err != nil {
			s.logger.Warn("skipping hwmon chip", "chip", chip, "error", err)
			continue
		}
		tree.Nodes = append(tree.Nodes, node)
	}
	s.opened = true
	return tree, nil
}

func (s *Source) openChip(dir string) (hardware.Node, error) {
	attrs, err := os.ReadDir(dir)
	if err != nil {
		return hardware.Node{}, err
	}

	name := readString(filepath.Join(dir, "name"))
	if name == "" {
		name = filepath.Base(dir)
	}
	idBase := "/hwmon/" + name
	if dev := deviceName(dir); dev != "" {
		idBase += "@" + dev
	}

	type found struct {
		prefix string
		n      int
		file   string
	}
	var list []found
	for _, a := range attrs {
		m := attrPattern.FindStringSubmatch(a.Name())
		if m == nil {
			continue
		}
		// pwm has no _input suffix; fans and temps need it.
		if (m[1] == "pwm") != (m[3] == "") {
			continue
		}
		n, _ := strconv.Atoi(m[2])
		list = append(list, found{prefix: m[1], n: n, file: a.Name()})
	}
	order := map[string]int{"pwm": 0, "fan": 1, "temp": 2}
	sort.Slice(list, func(i, j int) bool {
		if list[i].prefix != list[j].prefix {
			return order[list[i].prefix] < order[list[j].prefix]
		}
		return list[i].n < list[j].n
	})

	node := hardware.Node{Name: name}
	for _, f := range list {
		base := fmt.Sprintf("%s%d", f.prefix, f.n)
		sn := &sensor{
			src:   s,
			id:    idBase + "/" + base,
			name:  readString(filepath.Join(dir, base+"_label")),
			input: filepath.Join(dir, f.file),
		}
		switch f.prefix {
		case "pwm":
			sn.kind = hardware.SensorControl
			sn.scale = float64(percentMax) / pwmMax
			sn.enablePath = filepath.Join(dir, base+"_enable")
			sn.origEnable = readString(sn.enablePath)
			sn.writable = writable(sn.input)
		case "fan":
			sn.kind = hardware.SensorFan
			sn.scale = 1
		case "temp":
			sn.kind = hardware.SensorTemperature
			sn.scale = 1.0 / milliPerUnit
		}
		s.sensors = append(s.sensors, sn)
		node.Sensors = append(node.Sensors, sn)
	}
	return node, nil
}

// Update re-reads every sensor. Attributes that cannot be read report no
// value until the next successful poll.
func (s *Source) Update(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.opened {
		return ErrNotOpened
	}
	for _, sn := range s.sensors {
		sn.poll()
	}
	return nil
}

// Close releases the source. hwmon holds no descriptors between reads.
func (s *Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opened = false
	return nil
}

type sensor struct {
	src   *Source
	kind  hardware.SensorKind
	id    string
	name  string
	input string
	scale float64

	enablePath string
	origEnable string
	writable   bool

	mu    sync.Mutex
	value float64
	has   bool
}

func (sn *sensor) Kind() hardware.SensorKind { return sn.kind }
func (sn *sensor) Name() string              { return sn.name }
func (sn *sensor) Identifier() string        { return sn.id }

func (sn *sensor) Value() (float64, bool) {
	sn.mu.Lock()
	defer sn.mu.Unlock()
	return sn.value, sn.has
}

func (sn *sensor) poll() {
	raw, err := readInt(sn.input)
	sn.mu.Lock()
	defer sn.mu.Unlock()
	if err != nil {
		sn.src.logger.Debug("hwmon read failed", "path", sn.input, "error", err)
		sn.has = false
		return
	}
	sn.value = float64(raw) * sn.scale
	sn.has = true
}

func (sn *sensor) ControlHandle() (hardware.ControlHandle, bool) {
	if sn.kind != hardware.SensorControl || !sn.writable {
		return nil, false
	}
	return sn, true
}

// SetSoftware switches the channel to manual mode and writes the duty cycle.
func (sn *sensor) SetSoftware(v float64) error {
	if sn.origEnable != "" {
		if err := writeAttr(sn.enablePath, enableManual); err != nil {
			return err
		}
	}
	raw := int(math.Round(v * pwmMax / percentMax))
	if err := writeAttr(sn.input, strconv.Itoa(raw)); err != nil {
		return err
	}

	sn.mu.Lock()
	sn.value = v
	sn.has = true
	sn.mu.Unlock()
	return nil
}

// SetDefault restores the enable mode captured at Open. Channels without an
// enable attribute are driven to full speed.
func (sn *sensor) SetDefault() error {
	if sn.origEnable != "" {
		return writeAttr(sn.enablePath, sn.origEnable)
	}
	return writeAttr(sn.input, strconv.Itoa(pwmMax))
}

func (sn *sensor) Min() float64 { return 0 }
func (sn *sensor) Max() float64 { return percentMax }

func writeAttr(path, value string) error {
	if err := os.WriteFile(path, []byte(value), 0); err != nil {
		if isPermission(err) {
			return fmt.Errorf("%w: %w", hardware.ErrNoControlCapability, err)
		}
		return fmt.Errorf("hwmon: writing %s: %w", path, err)
	}
	return nil
}

func readString(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

func readInt(path string) (int64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

// deviceName returns the basename of the chip's device link, which is
// stable across boots where the hwmonN number is not.
func deviceName(chipDir string) string {
	link, err := os.Readlink(filepath.Join(chipDir, "device"))
	if err != nil {
		return ""
	}
	return filepath.Base(link)
}

func chipNumber(name string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(name, "hwmon"))
	if err != nil {
		return math.MaxInt
	}
	return n
}
