// Package meta gathers client details sent alongside a message for spam
// triage. Every field is best effort; unknown values are left empty.
package meta

import (
	"fmt"
	"math"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/x/term"
	"github.com/samber/lo"
	"github.com/shirou/gopsutil/v4/mem"
)

type Info struct {
	Page                string `json:"page"`
	Referrer            string `json:"referrer"`
	UserAgent           string `json:"userAgent"`
	Language            string `json:"language"`
	Platform            string `json:"platform"`
	Timezone            string `json:"timezone"`
	Screen              string `json:"screen"`
	Viewport            string `json:"viewport"`
	DeviceMemory        string `json:"deviceMemory"`
	HardwareConcurrency string `json:"hardwareConcurrency"`
	Connection          string `json:"connection"`
	TS                  string `json:"ts"`
}

// Collector describes the process it runs in. Zero values are filled from
// the environment.
type Collector struct {
	Page      string
	Referrer  string
	UserAgent string
	Viewport  func() (width, height int)
	Getenv    func(string) string
	Now       func() time.Time
	// Memory reports total system memory in bytes.
	Memory func() (uint64, error)
}

func (c Collector) Collect() Info {
	getenv := c.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}
	viewport := c.Viewport
	if viewport == nil {
		viewport = terminalSize
	}
	memory := c.Memory
	if memory == nil {
		memory = totalMemory
	}

	w, h := viewport()
	size := fmt.Sprintf("%dx%d", max(w, 0), max(h, 0))
	ts := now()

	return Info{
		Page:                c.Page,
		Referrer:            c.Referrer,
		UserAgent:           c.userAgent(),
		Language:            Language(getenv),
		Platform:            runtime.GOOS + "/" + runtime.GOARCH,
		Timezone:            timezone(ts, getenv),
		Screen:              size,
		Viewport:            size,
		DeviceMemory:        deviceMemory(memory),
		HardwareConcurrency: strconv.Itoa(runtime.NumCPU()),
		Connection:          connection(getenv),
		TS:                  ts.UTC().Format("2006-01-02T15:04:05.000Z"),
	}
}

func (c Collector) userAgent() string {
	if c.UserAgent != "" {
		return c.UserAgent
	}
	return fmt.Sprintf("contact-courier (%s; %s) %s", runtime.GOOS, runtime.GOARCH, runtime.Version())
}

// Language turns a POSIX locale such as "fa_IR.UTF-8" into "fa-IR".
func Language(getenv func(string) string) string {
	for _, k := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := strings.TrimSpace(getenv(k))
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		v, _, _ = strings.Cut(v, ".")
		v, _, _ = strings.Cut(v, "@")
		return strings.ReplaceAll(v, "_", "-")
	}
	return ""
}

func timezone(now time.Time, getenv func(string) string) string {
	if tz := strings.TrimSpace(getenv("TZ")); tz != "" {
		return strings.TrimPrefix(tz, ":")
	}
	if name := now.Location().String(); name != "Local" {
		return name
	}
	name, _ := now.Zone()
	return name
}

func connection(getenv func(string) string) string {
	proxy := lo.CoalesceOrEmpty(getenv("HTTPS_PROXY"), getenv("https_proxy"), getenv("HTTP_PROXY"))
	parts := []string{
		lo.Ternary(proxy != "", "proxy=1", ""),
		lo.Ternary(getenv("SSH_CONNECTION") != "", "remote=ssh", ""),
	}
	return strings.Join(lo.Compact(parts), ", ")
}

func terminalSize() (int, int) {
	w, h, err := term.GetSize(os.Stdout.Fd())
	if err != nil {
		return 0, 0
	}
	return w, h
}

func totalMemory() (uint64, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return 0, err
	}
	return vm.Total, nil
}

// deviceMemory buckets total memory to the nearest power of two GiB,
// e.g. "0.5", "8", "16". Empty when the size is unknown.
func deviceMemory(memory func() (uint64, error)) string {
	total, err := memory()
	if err != nil || total == 0 {
		return ""
	}
	gib := float64(total) / (1 << 30)
	return strconv.FormatFloat(math.Exp2(math.Round(math.Log2(gib))), 'f', -1, 64)
}
