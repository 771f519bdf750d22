// Package radio supervises the external tuner processes: the nrsc5 HD Radio
// decoder piped into ffplay, with an rtl_fm analog fallback when HD sync
// cannot be acquired.
package radio

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// syncTimeout is how long the HD decoder gets to acquire sync before the
// tuner falls back to analog FM.
const syncTimeout = 6 * time.Second

// State describes what the tuner is currently doing.
type State int

const (
	StateStopped State = iota
	// StateTuning: the HD pipeline is up but has not reported sync yet.
	StateTuning
	// StateHDSync: the decoder is synchronized and producing audio.
	StateHDSync
	// StateAnalog: HD sync failed; rtl_fm is carrying the audio.
	StateAnalog
)

func (s State) String() string {
	switch s {
	case StateTuning:
		return "tuning"
	case StateHDSync:
		return "hd-sync"
	case StateAnalog:
		return "analog"
	}
	return "stopped"
}

// Callbacks deliver decoder output and state transitions. OnLine may be
// called from internal goroutines; OnState is invoked one transition at a
// time, in order, from a single dispatch goroutine. The receiver is
// responsible for marshalling onto its own loop.
type Callbacks struct {
	OnLine  func(string)
	OnState func(State)
}

// Options select what to tune and how.
type Options struct {
	FreqMHz        float64
	HDProgram      int
	Gain           float64 // 0 means auto
	PPM            int
	DeviceIndex    int
	Volume         int // 0-100
	LotDir         string
	AnalogFallback bool
}

// Tuner owns at most one running pipeline at a time.
type Tuner struct {
	log hclog.Logger
	cb  Callbacks

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	state  State

	// gen increments on every Tune and Stop; the fallback timer captures it
	// when armed so a stale timer cannot act on a later tune.
	gen      uint64
	fallback *time.Timer

	states chan State
}

// NewTuner returns a stopped tuner.
func NewTuner(log hclog.Logger, cb Callbacks) *Tuner {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	t := &Tuner{log: log, cb: cb}
	if cb.OnState != nil {
		t.states = make(chan State, 16)
		go func() {
			for s := range t.states {
				cb.OnState(s)
			}
		}()
	}
	return t
}

// Close stops the tuner and releases the state dispatch goroutine. The tuner
// must not be used afterwards.
func (t *Tuner) Close() {
	t.Stop()
	t.mu.Lock()
	ch := t.states
	t.states = nil
	t.mu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// CheckExecutables verifies the external programs are installed before any
// tuning is attempted.
func CheckExecutables(analogFallback bool) error {
	needed := []string{"nrsc5", "ffplay"}
	if analogFallback {
		needed = append(needed, "rtl_fm")
	}
	for _, name := range needed {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("required program %q not found in PATH: %w", name, err)
		}
	}
	return nil
}

// State returns the current tuner state.
func (t *Tuner) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Tune stops any running pipeline and starts the HD decoder for opts. When
// the decoder fails to report sync within the timeout and fallback is
// enabled, the tuner restarts in analog mode on the same frequency.
func (t *Tuner) Tune(opts Options) {
	t.Stop()

	t.mu.Lock()
	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.gen++
	t.setStateLocked(StateTuning)
	if opts.AnalogFallback {
		gen := t.gen
		t.fallback = time.AfterFunc(syncTimeout, func() { t.fallbackToAnalog(opts, gen) })
	}
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runHD(ctx, opts)
	}()
}

// Stop tears down the running pipeline and waits for it to exit.
func (t *Tuner) Stop() {
	t.mu.Lock()
	t.gen++
	if t.fallback != nil {
		t.fallback.Stop()
		t.fallback = nil
	}
	cancel := t.cancel
	t.cancel = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()

	t.mu.Lock()
	t.setStateLocked(StateStopped)
	t.mu.Unlock()
}

func (t *Tuner) setStateLocked(s State) {
	if t.state == s {
		return
	}
	t.state = s
	if t.states == nil {
		return
	}
	select {
	case t.states <- s:
	default:
		// Full buffer: shed the oldest queued transition so the newest
		// state still reaches the consumer. setStateLocked is the only
		// sender and runs under t.mu, so the follow-up send cannot block.
		select {
		case <-t.states:
		default:
		}
		t.states <- s
	}
}

// fallbackToAnalog fires from the sync timer: the HD pipeline is replaced by
// rtl_fm on the same frequency. gen ties the timer to the Tune that armed
// it; any Tune or Stop since then makes the timer a no-op.
func (t *Tuner) fallbackToAnalog(opts Options, gen uint64) {
	t.mu.Lock()
	if gen != t.gen || t.state != StateTuning || t.cancel == nil {
		t.mu.Unlock()
		return
	}
	t.log.Info("no HD sync, falling back to analog FM", "freq", opts.FreqMHz)
	t.fallback = nil
	cancel := t.cancel
	t.mu.Unlock()

	cancel()
	t.wg.Wait()

	t.mu.Lock()
	if gen != t.gen {
		// A retune slipped in while the HD pipeline was draining.
		t.mu.Unlock()
		return
	}
	ctx, newCancel := context.WithCancel(context.Background())
	t.cancel = newCancel
	t.setStateLocked(StateAnalog)
	t.mu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.runAnalog(ctx, opts)
	}()
}

// onDecoderLine inspects a decoder log line for sync transitions before
// handing it to the line callback.
func (t *Tuner) onDecoderLine(line string) {
	if IsSyncLine(line) {
		t.mu.Lock()
		if t.fallback != nil {
			t.fallback.Stop()
			t.fallback = nil
		}
		t.setStateLocked(StateHDSync)
		t.mu.Unlock()
	} else if IsSyncLossLine(line) {
		t.mu.Lock()
		if t.state == StateHDSync {
			t.setStateLocked(StateTuning)
		}
		t.mu.Unlock()
	}
	if t.cb.OnLine != nil {
		t.cb.OnLine(line)
	}
}

func (t *Tuner) runHD(ctx context.Context, opts Options) {
	decoder := exec.CommandContext(ctx, "nrsc5", NRSC5Args(opts)...)
	player := exec.CommandContext(ctx, "ffplay", HDPlayerArgs(opts)...)
	t.runPipeline(ctx, decoder, player, "nrsc5")
}

func (t *Tuner) runAnalog(ctx context.Context, opts Options) {
	decoder := exec.CommandContext(ctx, "rtl_fm", RtlFMArgs(opts)...)
	player := exec.CommandContext(ctx, "ffplay", AnalogPlayerArgs(opts)...)
	t.runPipeline(ctx, decoder, player, "rtl_fm")
}

// runPipeline wires decoder stdout into the player's stdin, reads decoder
// stderr line by line, and blocks until both processes exit.
func (t *Tuner) runPipeline(ctx context.Context, decoder, player *exec.Cmd, name string) {
	audio, err := decoder.StdoutPipe()
	if err != nil {
		t.log.Error("decoder stdout pipe failed", "decoder", name, "error", err)
		return
	}
	stderr, err := decoder.StderrPipe()
	if err != nil {
		t.log.Error("decoder stderr pipe failed", "decoder", name, "error", err)
		return
	}
	player.Stdin = audio

	if err := decoder.Start(); err != nil {
		t.log.Error("decoder start failed", "decoder", name, "error", err)
		return
	}
	if err := player.Start(); err != nil {
		t.log.Error("audio player start failed", "error", err)
		_ = decoder.Process.Kill()
		_ = decoder.Wait()
		return
	}
	t.log.Info("pipeline started", "decoder", name,
		"decoderPid", decoder.Process.Pid, "playerPid", player.Process.Pid)

	var readers sync.WaitGroup
	readers.Add(1)
	go func() {
		defer readers.Done()
		t.readLines(stderr)
	}()

	derr := decoder.Wait()
	readers.Wait()
	perr := player.Wait()
	if ctx.Err() == nil {
		// The pipeline died on its own, not because of Stop or retune.
		t.log.Warn("pipeline exited", "decoder", name,
			"decoderErr", derr, "playerErr", perr)
	}
}

func (t *Tuner) readLines(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for sc.Scan() {
		t.onDecoderLine(sc.Text())
	}
}
