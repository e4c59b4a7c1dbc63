package state

import (
	"path/filepath"

	"github.com/hashicorp/hcl"
	"github.com/juju/errors"

	"github.com/machkit/panel/helpers"
	"github.com/machkit/panel/log2"
	"github.com/machkit/panel/tele"
)

type Config struct { //nolint:maligned
	// includeSeen contains absolute paths to prevent include loops
	includeSeen map[string]struct{}
	// only used for Unmarshal, do not access
	XXX_Include []ConfigSource `hcl:"include"`

	Display struct {
		Rows     int    `hcl:"rows"`
		Cols     int    `hcl:"cols"`
		Codepage string `hcl:"codepage"`
	} `hcl:"display"`

	Buttons struct {
		Spi             string `hcl:"spi"`
		NotifyPinChip   string `hcl:"pin_chip"`
		NotifyPin       string `hcl:"pin"`
		QueryIntervalMs int    `hcl:"query_interval_ms"`
		RetransmitCount int    `hcl:"retransmit_count"`
		LogDebug        bool   `hcl:"log_debug"`

		ClickPin    string `hcl:"click_pin"`
		BackPin     string `hcl:"back_pin"`
		UpPin       string `hcl:"up_pin"`
		DownPin     string `hcl:"down_pin"`
		KillPin     string `hcl:"kill_pin"`
		EncoderPins string `hcl:"encoder_pins"`

		DevInputEvent struct {
			Enable bool   `hcl:"enable"`
			Device string `hcl:"device"`
		} `hcl:"dev_input_event"`
	} `hcl:"buttons"`

	UI struct {
		Root       string `hcl:"root"`
		Autorun    bool   `hcl:"autorun"`
		TimeoutSec int    `hcl:"timeout_sec"`
	} `hcl:"ui"`

	Persist struct {
		Root string `hcl:"root"`
	} `hcl:"persist"`

	Tele tele.Config `hcl:"tele"`

	Menu []MenuSection `hcl:"menu"`
}

type ConfigSource struct {
	Name     string `hcl:"name,key"`
	Optional bool   `hcl:"optional"`
}

// MenuSection is one declarative `menu "namespace.path" {}` block.
// Which fields apply depends on Type; unknown types are a load-time error.
type MenuSection struct { //nolint:maligned
	Name string `hcl:"name,key"`
	Type string `hcl:"type"` // item|command|input|list|group|cycler|dynamic|view

	Title  string `hcl:"title"`
	Enable string `hcl:"enable"`
	Cursor string `hcl:"cursor"`
	Width  int    `hcl:"width"`
	Scroll bool   `hcl:"scroll"`

	Parameter string `hcl:"parameter"`

	Script      string `hcl:"script"`
	Action      string `hcl:"action"`
	EnterScript string `hcl:"enter_script"`
	LeaveScript string `hcl:"leave_script"`

	InputMin      float64 `hcl:"input_min"`
	InputMax      float64 `hcl:"input_max"`
	InputStep     float64 `hcl:"input_step"`
	InputStepFast float64 `hcl:"input_step_fast"`
	Reverse       bool    `hcl:"reverse"`
	Realtime      bool    `hcl:"realtime"`
	Readonly      string  `hcl:"readonly"`
	PersistValue  bool    `hcl:"persist_value"`

	Items     string `hcl:"items"`
	Content   string `hcl:"content"`
	HideBack  bool   `hcl:"hide_back"`
	HideTitle bool   `hcl:"hide_title"`
	Provider  string `hcl:"provider"`
	Interval  int    `hcl:"interval"`
}

func (c *Config) read(log *log2.Log, fs FullReader, source ConfigSource, errs *[]error) {
	norm := fs.Normalize(source.Name)
	if _, ok := c.includeSeen[norm]; ok {
		log.Fatalf("config duplicate source=%s", source.Name)
	} else {
		log.Debugf("config reading source='%s' path=%s", source.Name, norm)
	}
	c.includeSeen[source.Name] = struct{}{}
	c.includeSeen[norm] = struct{}{}

	bs, err := fs.ReadAll(norm)
	if bs == nil && err == nil {
		if !source.Optional {
			err = errors.NotFoundf("config required name=%s path=%s", source.Name, norm)
			*errs = append(*errs, err)
			return
		}
	}
	if err != nil {
		*errs = append(*errs, errors.Annotatef(err, "config source=%s", source.Name))
		return
	}

	err = hcl.Unmarshal(bs, c)
	if err != nil {
		err = errors.Annotatef(err, "config unmarshal source=%s content='%s'", source.Name, string(bs))
		*errs = append(*errs, err)
		return
	}

	var includes []ConfigSource
	includes, c.XXX_Include = c.XXX_Include, nil
	for _, include := range includes {
		includeNorm := fs.Normalize(include.Name)
		if _, ok := c.includeSeen[includeNorm]; ok {
			err = errors.Errorf("config include loop: from=%s include=%s", source.Name, include.Name)
			*errs = append(*errs, err)
			continue
		}
		c.read(log, fs, include, errs)
	}
}

func ReadConfig(log *log2.Log, fs FullReader, names ...string) (*Config, error) {
	if len(names) == 0 {
		log.Fatal("code error [Must]ReadConfig() without names")
	}

	if osfs, ok := fs.(*OsFullReader); ok {
		dir, name := filepath.Split(names[0])
		osfs.SetBase(dir)
		names[0] = name
	}
	c := &Config{
		includeSeen: make(map[string]struct{}),
	}
	errs := make([]error, 0, 8)
	for _, name := range names {
		c.read(log, fs, ConfigSource{Name: name}, &errs)
	}
	return c, helpers.FoldErrors(errs)
}

func MustReadConfig(log *log2.Log, fs FullReader, names ...string) *Config {
	c, err := ReadConfig(log, fs, names...)
	if err != nil {
		log.Fatal(errors.ErrorStack(err))
	}
	return c
}
