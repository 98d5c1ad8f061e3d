package gcode

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"time"
)

var (
	// ErrUnsupported is returned for codes the interpreter does not run
	ErrUnsupported = errors.New("gcode: unsupported command")

	// ErrParameter is returned for a missing or out of range parameter
	ErrParameter = errors.New("gcode: bad parameter")
)

// Servos is the channel table a script drives. *core.ServoBank satisfies it.
type Servos interface {
	Attach(ch uint8) error
	Detach(ch uint8)
	Attached(ch uint8) bool
	Write(ch uint8, degrees uint16)
	Pulse(ch uint8, us uint16)
	Read(ch uint8) (uint8, bool)
	PulseWidth(ch uint8) (uint16, bool)
	SetMinimumPulse(ch uint8, us uint16)
	SetMaximumPulse(ch uint8, us uint16)
	MinimumPulse(ch uint8) (uint16, bool)
	MaximumPulse(ch uint8) (uint16, bool)
}

// Interpreter executes servo G-code:
//
//	M280 P<ch> S<degrees>   move to an angle, attaching first
//	M280 P<ch> W<us>        move to a pulse width, attaching first
//	M280 P<ch>              report angle and width
//	M281 P<ch> L<us> U<us>  set the 0 and 180 degree widths; bare reports them
//	M282 P<ch>              detach
//	G4 P<ms> | S<s>         dwell
type Interpreter struct {
	servos Servos
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewInterpreter drives servos, dwelling on the wall clock
func NewInterpreter(servos Servos) *Interpreter {
	return &Interpreter{servos: servos, sleep: sleepContext}
}

// SetSleep replaces the dwell implementation
func (in *Interpreter) SetSleep(sleep func(ctx context.Context, d time.Duration) error) {
	in.sleep = sleep
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Execute runs one command and returns its report line, if any
func (in *Interpreter) Execute(ctx context.Context, cmd *Command) (string, error) {
	if cmd == nil || cmd.Type == 0 {
		return "", nil
	}
	switch {
	case cmd.Type == 'G' && cmd.Number == 4:
		return "", in.dwell(ctx, cmd)
	case cmd.Type == 'M' && cmd.Number == 280:
		return in.position(cmd)
	case cmd.Type == 'M' && cmd.Number == 281:
		return in.bounds(cmd)
	case cmd.Type == 'M' && cmd.Number == 282:
		ch, err := channel(cmd)
		if err != nil {
			return "", err
		}
		in.servos.Detach(ch)
		return "", nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnsupported, cmd)
}

func (in *Interpreter) dwell(ctx context.Context, cmd *Command) error {
	var d time.Duration
	switch {
	case cmd.HasParameter('P'):
		d = time.Duration(cmd.GetParameter('P', 0) * float64(time.Millisecond))
	case cmd.HasParameter('S'):
		d = time.Duration(cmd.GetParameter('S', 0) * float64(time.Second))
	}
	if d < 0 {
		return fmt.Errorf("%w: negative dwell", ErrParameter)
	}
	if d == 0 {
		return nil
	}
	return in.sleep(ctx, d)
}

func (in *Interpreter) position(cmd *Command) (string, error) {
	ch, err := channel(cmd)
	if err != nil {
		return "", err
	}
	switch {
	case cmd.HasParameter('S'):
		deg, err := value(cmd, 'S')
		if err != nil {
			return "", err
		}
		if err := in.attach(ch); err != nil {
			return "", err
		}
		in.servos.Write(ch, deg)
	case cmd.HasParameter('W'):
		us, err := value(cmd, 'W')
		if err != nil {
			return "", err
		}
		if err := in.attach(ch); err != nil {
			return "", err
		}
		in.servos.Pulse(ch, us)
	default:
		deg, ok := in.servos.Read(ch)
		if !ok {
			return "", fmt.Errorf("%w: no channel %d", ErrParameter, ch)
		}
		us, _ := in.servos.PulseWidth(ch)
		return fmt.Sprintf("Servo %d: %d degrees %dus attached=%t", ch, deg, us, in.servos.Attached(ch)), nil
	}
	return "", nil
}

func (in *Interpreter) bounds(cmd *Command) (string, error) {
	ch, err := channel(cmd)
	if err != nil {
		return "", err
	}
	if !cmd.HasParameter('L') && !cmd.HasParameter('U') {
		lo, ok := in.servos.MinimumPulse(ch)
		if !ok {
			return "", fmt.Errorf("%w: no channel %d", ErrParameter, ch)
		}
		hi, _ := in.servos.MaximumPulse(ch)
		return fmt.Sprintf("Servo %d: L%d U%d", ch, lo, hi), nil
	}
	if cmd.HasParameter('L') {
		us, err := value(cmd, 'L')
		if err != nil {
			return "", err
		}
		in.servos.SetMinimumPulse(ch, us)
	}
	if cmd.HasParameter('U') {
		us, err := value(cmd, 'U')
		if err != nil {
			return "", err
		}
		in.servos.SetMaximumPulse(ch, us)
	}
	return "", nil
}

func (in *Interpreter) attach(ch uint8) error {
	if in.servos.Attached(ch) {
		return nil
	}
	return in.servos.Attach(ch)
}

// channel reads the P index; invalid indices are left to the bank
func channel(cmd *Command) (uint8, error) {
	if !cmd.HasParameter('P') {
		return 0, fmt.Errorf("%w: %s needs P", ErrParameter, cmd)
	}
	p := cmd.GetParameter('P', 0)
	if p < 0 || p > math.MaxUint8 || p != math.Trunc(p) {
		return 0, fmt.Errorf("%w: P%g", ErrParameter, p)
	}
	return uint8(p), nil
}

// value rounds a letter's value into uint16 range
func value(cmd *Command, letter byte) (uint16, error) {
	v := math.Round(cmd.GetParameter(letter, 0))
	if v < 0 || v > math.MaxUint16 {
		return 0, fmt.Errorf("%w: %c%g", ErrParameter, letter, cmd.GetParameter(letter, 0))
	}
	return uint16(v), nil
}

// Run executes a script, writing "ok" or the report for each command and
// stopping at the first failure, which is returned with its line number.
func (in *Interpreter) Run(ctx context.Context, script io.Reader, out io.Writer) error {
	parser := NewParser()
	scanner := bufio.NewScanner(script)
	for n := 1; scanner.Scan(); n++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cmd, err := parser.ParseLine(scanner.Text())
		if err == nil {
			var report string
			report, err = in.Execute(ctx, cmd)
			if err == nil && cmd != nil && cmd.Type != 0 {
				if report != "" {
					fmt.Fprintf(out, "// %s\n", report)
				}
				fmt.Fprintln(out, "ok")
			}
		}
		if err != nil {
			fmt.Fprintf(out, "!! %v\n", err)
			return fmt.Errorf("line %d: %w", n, err)
		}
	}
	return scanner.Err()
}
