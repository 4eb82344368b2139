package obd2_test

import (
	"context"
	"testing"
	"time"

	"github.com/roffe/goobd"
	"github.com/roffe/goobd/pkg/ecusim"
	"github.com/roffe/goobd/pkg/obd2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newBench wires a tester session and one simulated ECU onto a shared
// virtual bus. The ECU always reports 1726 rpm and 100 °C coolant.
func newBench(t *testing.T, ecuCfg *ecusim.Config, opts *obd2.Options) (*obd2.Session, *ecusim.ECU, *goobd.VirtualBus) {
	t.Helper()
	bus := goobd.NewVirtualBus()
	testerTr := bus.Join(nil)
	ecuTr := bus.Join(nil)
	t.Cleanup(func() { testerTr.Close() })
	t.Cleanup(func() { ecuTr.Close() })

	ecu := ecusim.New(ecuTr, ecuCfg)
	ecu.SetPID(0x0C, 0x1A, 0xF8)
	ecu.SetPID(0x05, 0x8C)
	ecu.Start()
	t.Cleanup(ecu.Stop)

	sess, err := obd2.NewSession(testerTr, opts)
	require.NoError(t, err)
	return sess, ecu, bus
}

func TestSessionQueryPID(t *testing.T) {
	sess, _, _ := newBench(t, nil, nil)

	resp, err := sess.QueryPID(context.Background(), 0x0C, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1726.0, resp.Value.Float)
	assert.Equal(t, "rpm", resp.Value.Unit)
	assert.Equal(t, uint32(0x7E8), resp.Source)
}

func TestSessionPhysicalFiltersOtherIDs(t *testing.T) {
	bus := goobd.NewVirtualBus()
	testerTr := bus.Join(nil)
	ecuTr := bus.Join(nil)
	noiseTr := bus.Join(nil)
	t.Cleanup(func() { testerTr.Close() })
	t.Cleanup(func() { ecuTr.Close() })
	t.Cleanup(func() { noiseTr.Close() })

	ecu := ecusim.New(ecuTr, &ecusim.Config{RequestID: 0x7E1, Delay: 60 * time.Millisecond})
	ecu.SetPID(0x0C, 0x1A, 0xF8)
	ecu.Start()
	t.Cleanup(ecu.Stop)

	// impostor floods the neighbouring response identifier with a
	// plausible but wrong reading
	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		fake := []byte{0x04, 0x41, 0x0C, 0xFF, 0xFF, 0x00, 0x00, 0x00}
		tick := time.NewTicker(10 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				noiseTr.Send(goobd.NewFrame(0x7E8, fake))
			}
		}
	}()

	sess, err := obd2.NewSession(testerTr, &obd2.Options{RequestID: 0x7E1})
	require.NoError(t, err)

	resp, err := sess.QueryPID(context.Background(), 0x0C, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x7E9), resp.Source)
	assert.Equal(t, 1726.0, resp.Value.Float)
}

func TestSessionTimeoutBounds(t *testing.T) {
	sess, _, _ := newBench(t, nil, nil)

	start := time.Now()
	_, err := sess.QueryPID(context.Background(), 0xEE, 100*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, goobd.ErrTimeout)
	var timeout *goobd.TimeoutError
	assert.ErrorAs(t, err, &timeout)
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 600*time.Millisecond)
}

func TestSessionNoiseKeepsDeadline(t *testing.T) {
	bus := goobd.NewVirtualBus()
	testerTr := bus.Join(nil)
	noiseTr := bus.Join(nil)
	t.Cleanup(func() { testerTr.Close() })
	t.Cleanup(func() { noiseTr.Close() })

	stop := make(chan struct{})
	t.Cleanup(func() { close(stop) })
	go func() {
		tick := time.NewTicker(5 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				noiseTr.Send(goobd.NewFrame(0x280, []byte{0x00, 0x01, 0x02, 0x03}))
			}
		}
	}()

	sess, err := obd2.NewSession(testerTr, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = sess.QueryPID(context.Background(), 0x0C, 150*time.Millisecond)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, goobd.ErrTimeout)
	assert.GreaterOrEqual(t, elapsed, 150*time.Millisecond)
	assert.Less(t, elapsed, 700*time.Millisecond)
}

func TestSessionBusy(t *testing.T) {
	sess, _, _ := newBench(t, &ecusim.Config{Delay: 300 * time.Millisecond}, nil)

	done := make(chan error, 1)
	go func() {
		_, err := sess.QueryPID(context.Background(), 0x0C, time.Second)
		done <- err
	}()
	time.Sleep(50 * time.Millisecond)

	_, err := sess.QueryPID(context.Background(), 0x05, time.Second)
	assert.ErrorIs(t, err, obd2.ErrBusy)
	require.NoError(t, <-done)
}

func TestSessionNegativeResponse(t *testing.T) {
	sess, _, _ := newBench(t, nil, &obd2.Options{RequestID: 0x7E0})

	_, err := sess.QueryPID(context.Background(), 0xEE, time.Second)
	var neg *obd2.NegativeResponseError
	require.ErrorAs(t, err, &neg)
	assert.Equal(t, obd2.ServiceCurrentData, neg.Service)
	assert.Equal(t, byte(0x31), neg.Code)
}

func TestSessionResponsePending(t *testing.T) {
	cfg := &ecusim.Config{Pend: 2, PendGap: 80 * time.Millisecond}
	sess, _, _ := newBench(t, cfg, &obd2.Options{RequestID: 0x7E0})

	start := time.Now()
	resp, err := sess.QueryPID(context.Background(), 0x0C, 150*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 1726.0, resp.Value.Float)
	// the answer lands after the first window, only the pending
	// negatives kept the query alive
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestSessionVIN(t *testing.T) {
	const vin = "W0L000043MB541503"
	sess, _, _ := newBench(t, &ecusim.Config{VIN: vin}, nil)

	got, err := sess.VIN(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, vin, got)
}

func TestSessionDTCLifecycle(t *testing.T) {
	sess, ecu, _ := newBench(t, nil, nil)
	ecu.SetDTCs(
		[]obd2.DTC{{0x01, 0x33}, {0xF1, 0x23}},
		[]obd2.DTC{{0x41, 0x23}},
	)

	ctx := context.Background()
	stored, err := sess.ReadDTCs(ctx, time.Second)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "P0133", stored[0].String())
	assert.Equal(t, "U3123", stored[1].String())

	pending, err := sess.PendingDTCs(ctx, time.Second)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "C0123", pending[0].String())

	require.NoError(t, sess.ClearDTCs(ctx, time.Second))

	stored, err = sess.ReadDTCs(ctx, time.Second)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestSessionSupportedPIDs(t *testing.T) {
	sess, ecu, _ := newBench(t, nil, nil)
	ecu.SetPID(0x21, 0x00, 0x10)

	pids, err := sess.SupportedPIDs(context.Background(), time.Second)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x05, 0x0C, 0x20, 0x21}, pids)
}

func TestSessionBroadcastCollects(t *testing.T) {
	bus := goobd.NewVirtualBus()
	testerTr := bus.Join(nil)
	ecu1Tr := bus.Join(nil)
	ecu2Tr := bus.Join(nil)
	t.Cleanup(func() { testerTr.Close() })
	t.Cleanup(func() { ecu1Tr.Close() })
	t.Cleanup(func() { ecu2Tr.Close() })

	ecu1 := ecusim.New(ecu1Tr, nil)
	ecu1.SetPID(0x0C, 0x1A, 0xF8) // 1726 rpm
	ecu1.Start()
	t.Cleanup(ecu1.Stop)

	ecu2 := ecusim.New(ecu2Tr, &ecusim.Config{RequestID: 0x7E1})
	ecu2.SetPID(0x0C, 0x2E, 0xE0) // 3000 rpm
	ecu2.Start()
	t.Cleanup(ecu2.Stop)

	sess, err := obd2.NewSession(testerTr, nil)
	require.NoError(t, err)

	start := time.Now()
	resps, err := sess.Broadcast(context.Background(), obd2.NewRequest(obd2.ServiceCurrentData, 0x0C), 200*time.Millisecond)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond)
	require.Len(t, resps, 2)

	byID := make(map[uint32]float64)
	for _, r := range resps {
		byID[r.Source] = r.Value.Float
	}
	assert.Equal(t, 1726.0, byID[0x7E8])
	assert.Equal(t, 3000.0, byID[0x7E9])
}

func TestSessionBroadcastNoResponse(t *testing.T) {
	sess, _, _ := newBench(t, nil, nil)

	_, err := sess.Broadcast(context.Background(), obd2.NewRequest(obd2.ServiceCurrentData, 0xEE), 100*time.Millisecond)
	assert.ErrorIs(t, err, obd2.ErrNoResponse)
}

func TestSessionQueryCancelled(t *testing.T) {
	sess, _, _ := newBench(t, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := sess.QueryPID(ctx, 0xEE, 5*time.Second)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}
