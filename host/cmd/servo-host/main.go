// Command servo-host drives a servo controller over its serial link.
package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"pinguino/host/mcu"
	"pinguino/host/serial"
)

const (
	flagDevice  = "device"
	flagBaud    = "baud"
	flagTimeout = "timeout"
	flagDebug   = "debug"
)

func main() {
	var (
		logger *zap.Logger
		conn   *mcu.MCU
	)

	app := &cli.App{
		Name:  "servo-host",
		Usage: "command a servo controller",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagDevice,
				Aliases: []string{"d"},
				Value:   "/dev/ttyACM0",
				EnvVars: []string{"PINGUINO_DEVICE"},
				Usage:   "serial `DEVICE` of the controller",
			},
			&cli.IntFlag{
				Name:  flagBaud,
				Value: 250000,
				Usage: "baud rate (ignored by USB links)",
			},
			&cli.DurationFlag{
				Name:  flagTimeout,
				Value: time.Second,
				Usage: "wait for each ack and response",
			},
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			var err error
			if c.Bool(flagDebug) {
				logger, err = zap.NewDevelopment()
			} else {
				cfg := zap.NewProductionConfig()
				cfg.Encoding = "console"
				logger, err = cfg.Build()
			}
			if err != nil {
				return err
			}

			sc := serial.DefaultConfig(c.String(flagDevice))
			sc.Baud = c.Int(flagBaud)
			conn = mcu.NewMCU(logger)
			conn.SetTimeout(c.Duration(flagTimeout))
			if err := conn.ConnectWithConfig(sc); err != nil {
				return err
			}
			return conn.RetrieveDictionary()
		},
		After: func(c *cli.Context) error {
			var err error
			if conn != nil {
				err = conn.Close()
			}
			if logger != nil {
				// stderr cannot be synced on some terminals
				_ = logger.Sync()
			}
			return err
		},
		Commands: []*cli.Command{
			{
				Name:      "attach",
				Usage:     "start driving channels",
				ArgsUsage: "CHANNEL...",
				Action: func(c *cli.Context) error {
					return eachChannel(c, conn.Attach)
				},
			},
			{
				Name:      "detach",
				Usage:     "stop driving channels",
				ArgsUsage: "CHANNEL...",
				Action: func(c *cli.Context) error {
					return eachChannel(c, conn.Detach)
				},
			},
			{
				Name:      "write",
				Usage:     "command an angle in degrees",
				ArgsUsage: "CHANNEL DEGREES",
				Action: func(c *cli.Context) error {
					ch, v, err := channelValue(c)
					if err != nil {
						return err
					}
					return conn.Write(ch, v)
				},
			},
			{
				Name:      "pulse",
				Usage:     "command a pulse width in microseconds",
				ArgsUsage: "CHANNEL US",
				Action: func(c *cli.Context) error {
					ch, v, err := channelValue(c)
					if err != nil {
						return err
					}
					return conn.Pulse(ch, v)
				},
			},
			{
				Name:      "min",
				Usage:     "set the 0 degree pulse width",
				ArgsUsage: "CHANNEL US",
				Action: func(c *cli.Context) error {
					ch, v, err := channelValue(c)
					if err != nil {
						return err
					}
					return conn.SetMinimumPulse(ch, v)
				},
			},
			{
				Name:      "max",
				Usage:     "set the 180 degree pulse width",
				ArgsUsage: "CHANNEL US",
				Action: func(c *cli.Context) error {
					ch, v, err := channelValue(c)
					if err != nil {
						return err
					}
					return conn.SetMaximumPulse(ch, v)
				},
			},
			{
				Name:      "read",
				Usage:     "print channel state",
				ArgsUsage: "CHANNEL...",
				Action: func(c *cli.Context) error {
					return eachChannel(c, func(ch uint8) error {
						st, err := conn.Query(ch)
						if err != nil {
							return err
						}
						fmt.Printf("channel %d attached=%t degrees=%d pulse=%dus range=[%d,%d]us\n",
							st.Channel, st.Attached, st.Degrees, st.PulseUS, st.MinUS, st.MaxUS)
						return nil
					})
				},
			},
			{
				Name:  "info",
				Usage: "print firmware geometry and dictionary constants",
				Action: func(c *cli.Context) error {
					cfg, err := conn.Config()
					if err != nil {
						return err
					}
					clock, err := conn.Clock()
					if err != nil {
						return err
					}
					dict := conn.Dictionary()
					fmt.Printf("firmware %s (%s)\n", dict.Version, dict.BuildVersions)
					fmt.Printf("channels=%d mode=%s frame=%dus clock=%d\n",
						cfg.Channels, dict.Config["SERVO_MODE"], cfg.FrameUS, clock)
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "servo-host:", err)
		os.Exit(1)
	}
}

// eachChannel runs fn for every channel argument, collecting failures
func eachChannel(c *cli.Context, fn func(uint8) error) error {
	if c.NArg() == 0 {
		return cli.Exit("no channel given", 2)
	}
	var errs error
	for _, arg := range c.Args().Slice() {
		ch, err := parseChannel(arg)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		errs = multierr.Append(errs, fn(ch))
	}
	return errs
}

func channelValue(c *cli.Context) (uint8, uint16, error) {
	if c.NArg() != 2 {
		return 0, 0, cli.Exit("want CHANNEL VALUE", 2)
	}
	ch, err := parseChannel(c.Args().Get(0))
	if err != nil {
		return 0, 0, err
	}
	v, err := strconv.ParseUint(c.Args().Get(1), 10, 16)
	if err != nil {
		return 0, 0, fmt.Errorf("value %q: %w", c.Args().Get(1), err)
	}
	return ch, uint16(v), nil
}

func parseChannel(s string) (uint8, error) {
	v, err := strconv.ParseUint(s, 10, 8)
	if err != nil {
		return 0, fmt.Errorf("channel %q: %w", s, err)
	}
	return uint8(v), nil
}
