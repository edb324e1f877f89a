package main

import (
	"context"
	"fmt"

	"twiddle-pid-core/control"
	"twiddle-pid-core/utils"
)

// CAN signal names the link reads and writes.
const (
	sigCTE      = "cte_m"
	sigSpeed    = "speed_kph"
	sigHeading  = "heading_deg"
	sigSteering = "steering_cmd"
	sigThrottle = "throttle_cmd"
	sigRestart  = "restart_req"
)

// CANLink is a TelemetrySource and ActuationSink over a CAN bus.
type CANLink struct {
	cmap   *utils.CANMap
	rx     *utils.FrameDef
	tx     *utils.FrameDef
	reader utils.CANReader
	writer utils.CANWriter
	log    *utils.Logger
}

func NewCANLink(cmap *utils.CANMap, cfg CANConfig, reader utils.CANReader, writer utils.CANWriter, log *utils.Logger) (*CANLink, error) {
	rx, err := cmap.FrameByName(cfg.TelemetryFrame)
	if err != nil {
		return nil, fmt.Errorf("telemetry frame: %w", err)
	}
	if err := rx.Require(utils.DirectionRX, sigCTE, sigSpeed); err != nil {
		return nil, err
	}
	tx, err := cmap.FrameByName(cfg.CommandFrame)
	if err != nil {
		return nil, fmt.Errorf("command frame: %w", err)
	}
	if err := tx.Require(utils.DirectionTX, sigSteering, sigThrottle); err != nil {
		return nil, err
	}
	return &CANLink{cmap: cmap, rx: rx, tx: tx, reader: reader, writer: writer, log: log}, nil
}

// Next blocks until the next telemetry frame. Other frames on the bus are
// skipped.
func (l *CANLink) Next(ctx context.Context) (control.Telemetry, error) {
	for {
		frame, err := l.reader.ReadFrame(ctx)
		if err != nil {
			return control.Telemetry{}, err
		}
		if frame.ID != l.rx.ID {
			continue
		}
		values, err := l.cmap.DecodeFrame(frame)
		if err != nil {
			l.log.Warn("RX %s: %v", l.rx.Name, err)
			continue
		}
		l.log.Trace("RX id=0x%X len=%d data=% X", frame.ID, frame.Length, frame.Data[:frame.Length])
		return control.Telemetry{
			CTE:     values[sigCTE],
			Speed:   values[sigSpeed],
			Heading: values[sigHeading],
		}, nil
	}
}

func (l *CANLink) Send(ctx context.Context, cmd control.Command) error {
	return l.transmit(ctx, cmd, false)
}

// Restart sends a neutral command with the restart request bit set. Maps
// without a restart_req signal cannot request restarts.
func (l *CANLink) Restart(ctx context.Context) error {
	if _, ok := l.tx.Signal(sigRestart); !ok {
		l.log.Warn("frame %s has no %s signal; restart not sent", l.tx.Name, sigRestart)
		return nil
	}
	return l.transmit(ctx, control.Command{}, true)
}

func (l *CANLink) transmit(ctx context.Context, cmd control.Command, restart bool) error {
	frame, err := l.cmap.EncodeFrame(l.tx.Name, map[string]float64{
		sigSteering: cmd.Steering,
		sigThrottle: cmd.Throttle,
		sigRestart:  control.BoolToFloat(restart),
	})
	if err != nil {
		return fmt.Errorf("encode %s: %w", l.tx.Name, err)
	}
	if err := l.writer.WriteFrame(ctx, frame); err != nil {
		return fmt.Errorf("transmit %s: %w", l.tx.Name, err)
	}
	l.log.Trace("TX id=0x%X len=%d data=% X steer=%.4f throttle=%.4f restart=%v",
		frame.ID, frame.Length, frame.Data[:frame.Length], cmd.Steering, cmd.Throttle, restart)
	return nil
}

func (l *CANLink) Close() {
	if l.reader != nil {
		_ = l.reader.Close()
	}
	if l.writer != nil {
		_ = l.writer.Close()
	}
}

// runCAN opens the SocketCAN interface and drives one Runner from it.
func runCAN(ctx context.Context, cfg RunConfig, rcfg RunnerConfig, log *utils.Logger) error {
	cmap, err := utils.LoadCANMap(cfg.CAN.MapPath)
	if err != nil {
		return fmt.Errorf("load can map: %w", err)
	}
	writer, err := utils.NewSocketCANWriter(ctx, cfg.CAN.Interface)
	if err != nil {
		return err
	}
	reader, err := utils.NewSocketCANReader(ctx, cfg.CAN.Interface)
	if err != nil {
		_ = writer.Close()
		return err
	}
	link, err := NewCANLink(cmap, cfg.CAN, reader, writer, log)
	if err != nil {
		_ = reader.Close()
		_ = writer.Close()
		return err
	}
	defer link.Close()

	rcfg.Name = "can:" + cfg.CAN.Interface
	runner, err := NewRunner(rcfg, log)
	if err != nil {
		return err
	}
	log.Info("Starting CAN link: iface=%s rx=%s (0x%X) tx=%s (0x%X)",
		cfg.CAN.Interface, link.rx.Name, link.rx.ID, link.tx.Name, link.tx.ID)
	return runner.Run(ctx, link, link)
}
