// Command servo-linux drives hobby servos straight from the GPIO header of
// a Linux board, without a controller in between.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pinguino/core"
	"pinguino/host/linuxhal"
	"pinguino/standalone/gcode"
)

func main() {
	app := &cli.App{
		Name:  "servo-linux",
		Usage: "generate servo pulses on Linux GPIO lines",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:     "pins",
				Usage:    "GPIO line numbers, one per channel (17,18)",
				Required: true,
			},
			&cli.StringFlag{
				Name:  "mode",
				Value: "parallel",
				Usage: "pulse strategy: parallel or roundrobin",
			},
			&cli.UintFlag{
				Name:  "frame",
				Value: core.ServoDefaultFrameUS,
				Usage: "frame period in microseconds",
			},
			&cli.StringSliceFlag{
				Name:  "angle",
				Usage: "CHANNEL=DEGREES to command after attaching",
			},
			&cli.StringSliceFlag{
				Name:  "pulse",
				Usage: "CHANNEL=US to command after attaching",
			},
			&cli.PathFlag{
				Name:  "script",
				Usage: "run a G-code servo script (M280/M281/M282/G4) after attaching",
			},
			&cli.DurationFlag{
				Name:  "hold",
				Usage: "exit after this long; zero waits for a signal",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "enable debug logging",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "servo-linux:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	var logger *zap.Logger
	var err error
	if c.Bool("debug") {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	mode, err := core.ParseServoMode(c.String("mode"))
	if err != nil {
		return err
	}
	if mode == core.ServoModeCompare {
		return cli.Exit("compare mode needs hardware compare units", 2)
	}

	var pins []core.GPIOPin
	for _, arg := range c.StringSlice("pins") {
		for _, s := range strings.Split(arg, ",") {
			n, err := strconv.ParseUint(strings.TrimPrefix(strings.TrimSpace(s), "GPIO"), 10, 32)
			if err != nil {
				return fmt.Errorf("pin %q: %w", s, err)
			}
			pins = append(pins, core.GPIOPin(n))
		}
	}

	gpio, err := linuxhal.NewGPIO()
	if err != nil {
		return err
	}
	defer gpio.Release()
	core.SetGPIODriver(gpio)
	core.SetServoTimer(linuxhal.NewFrameTimer(nil, core.TimerFreq))

	cfg := core.DefaultServoConfig()
	cfg.Channels = len(pins)
	cfg.Pins = pins
	cfg.Mode = mode
	cfg.FrameUS = uint32(c.Uint("frame"))

	bank := core.NewServoBank()
	if err := bank.Init(cfg); err != nil {
		return fmt.Errorf("servo init: %w", err)
	}
	defer bank.Stop()
	logger.Info("servo bank running",
		zap.Int("channels", bank.Channels()),
		zap.Stringer("mode", bank.Mode()),
		zap.Uint32("frame_ticks", bank.FrameTicks()))

	var errs error
	for ch := range pins {
		if err := bank.Attach(uint8(ch)); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("attach %s: %w", linuxhal.PinName(pins[ch]), err))
		}
	}
	if errs != nil {
		return errs
	}

	if err := apply(c.StringSlice("angle"), bank.Write); err != nil {
		return err
	}
	if err := apply(c.StringSlice("pulse"), bank.Pulse); err != nil {
		return err
	}
	for ch := range pins {
		deg, _ := bank.Read(uint8(ch))
		us, _ := bank.PulseWidth(uint8(ch))
		logger.Info("channel",
			zap.Int("channel", ch),
			zap.String("pin", linuxhal.PinName(pins[ch])),
			zap.Uint8("degrees", deg),
			zap.Uint16("pulse_us", us))
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	if path := c.Path("script"); path != "" {
		ctx, cancel := context.WithCancel(c.Context)
		go func() {
			select {
			case <-sig:
				cancel()
			case <-ctx.Done():
			}
		}()
		err := runScript(ctx, path, bank)
		cancel()
		if err != nil {
			return err
		}
		logger.Info("script done", zap.String("script", path))
	}

	var hold <-chan time.Time
	if d := c.Duration("hold"); d > 0 {
		hold = time.After(d)
	}
	select {
	case s := <-sig:
		logger.Info("stopping", zap.Stringer("signal", s))
	case <-hold:
		logger.Info("hold elapsed")
	}
	return nil
}

func runScript(ctx context.Context, path string, bank *core.ServoBank) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gcode.NewInterpreter(bank).Run(ctx, f, os.Stdout)
}

// apply parses CHANNEL=VALUE pairs and feeds them to set
func apply(pairs []string, set func(ch uint8, v uint16)) error {
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			return fmt.Errorf("%q: want CHANNEL=VALUE", pair)
		}
		ch, err := strconv.ParseUint(k, 10, 8)
		if err != nil {
			return fmt.Errorf("%q: %w", pair, err)
		}
		val, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return fmt.Errorf("%q: %w", pair, err)
		}
		set(uint8(ch), uint16(val))
	}
	return nil
}
