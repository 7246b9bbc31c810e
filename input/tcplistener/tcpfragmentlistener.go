// Package tcplistener provides the TCP input endpoint accepting streams of XML event
// fragments terminated by closing tags
package tcplistener

import (
	"net"
	"sync"

	"github.com/relex/gotils/channels"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promreg"
	"github.com/relex/xevent-aggregator/base"
	"github.com/relex/xevent-aggregator/defs"
	"github.com/relex/xevent-aggregator/input/admission"
	"github.com/relex/xevent-aggregator/util"
)

const tcpReadBufferMax = 8 * 1024 * 1024 // Less than /proc/sys/net/ipv4/tcp_mem
const tcpReadBufferMin = 65536

var tcpLastReadBufferSize = tcpReadBufferMax // shared for all connections. No need to sync access as it's just a cached number.

// tcpFragmentListener is a TCP listener for a request-only stream of XML event fragments.
//
// The listener delivers complete fragments into a FragmentReceiver.
//
// - Incoming bytes are buffered per connection until a closing event tag can be recognized.
//
// - Sources over their rate limit are turned away at accept; individual events over the
// limit on an established connection are counted and dropped.
//
// There is no request confirmation and the protocol is inherently unreliable.
type tcpFragmentListener struct {
	logger      logger.Logger
	socket      *net.TCPListener
	config      Config
	gate        *admission.RateGate
	slots       *admission.ConnectionSlots
	receiver    base.FragmentReceiver
	metrics     listenerMetrics
	stopRequest channels.Awaitable
	stopTimeout channels.Awaitable // signaled a grace period after stopRequest to force connections shut
	taskCounter *sync.WaitGroup    // counter to track connection tasks and the listener task itself
	stopped     channels.Awaitable // stopped is signaled when both listener and all child connections have come to stop
}

// NewTCPFragmentListener creates a socket listening on the given TCP address and returns a
// new tcpFragmentListener if successful
//
// The given address may use port zero, which would cause the port to be assigned by OS
//
// Returns the listener, actual address including final port, and error if failed
func NewTCPFragmentListener(parentLogger logger.Logger, config Config, gate *admission.RateGate,
	slots *admission.ConnectionSlots, receiver base.FragmentReceiver,
	metricCreator promreg.MetricCreator, stopRequest channels.Awaitable) (base.FragmentListener, string, error) {

	// open TCP socket
	socket, err := net.Listen("tcp", config.Address)
	if err != nil {
		return nil, "", err
	}
	boundAddr := socket.Addr().String()

	lsnrLogger := parentLogger.WithFields(logger.Fields{
		defs.LabelComponent: "TCPFragmentListener",
		defs.LabelAddress:   boundAddr,
	})
	lsnrLogger.Info("start listening")

	// init taskCounter with 1 for the listener; Can't wait for Start() because WaitGroupAwaitable below would quit immediately if it's zero.
	taskCounter := &sync.WaitGroup{}
	taskCounter.Add(1)

	return &tcpFragmentListener{
		logger:      lsnrLogger,
		socket:      socket.(*net.TCPListener),
		config:      config,
		gate:        gate,
		slots:       slots,
		receiver:    receiver,
		metrics:     newListenerMetrics(metricCreator),
		stopRequest: stopRequest,
		stopTimeout: stopRequest.After(defs.InputShutDownGracePeriod),
		taskCounter: taskCounter,
		stopped:     channels.NewWaitGroupAwaitable(taskCounter), // input is only fully stopped after all connections are closed
	}, boundAddr, nil
}

func (lsnr *tcpFragmentListener) Start() {
	go lsnr.run()
}

func (lsnr *tcpFragmentListener) Stopped() channels.Awaitable {
	return lsnr.stopped
}

func (lsnr *tcpFragmentListener) run() {
	// background goroutine to wait and close listener on request
	abortListener := channels.NewSignalAwaitable()
	go func() {
		channels.AnyAwaitables(lsnr.stopRequest, abortListener).Next(func() {
			if abortListener.Peek() {
				lsnr.logger.Info("abort listener")
			} else {
				lsnr.logger.Info("close listener on stop request")
			}
		}).WaitForever()
		lsnr.socket.Close()
	}()

	// main loop
	lsnr.logger.Info("start accept loop")
	for {
		conn, err := lsnr.socket.AcceptTCP()
		if err != nil {
			if lsnr.stopRequest.Peek() && util.IsNetworkClosed(err) {
				// closed on stop request
			} else {
				lsnr.logger.Error("accept() error: ", err)
				abortListener.Signal()
			}
			break
		}

		source := sourceAddress(conn)
		connLogger := lsnr.logger.WithFields(logger.Fields{
			defs.LabelPart:   "connection",
			defs.LabelClient: conn.RemoteAddr().String(),
		})

		if !lsnr.gate.Check(source) {
			connLogger.Warn("rejected connection: source over rate limit")
			conn.Close()
			continue
		}
		slot := lsnr.slots.TryAcquire()
		if slot == nil {
			connLogger.Warn("rejected connection: too many clients")
			conn.Close()
			continue
		}

		connLogger.Info("accepted connection")
		lsnr.taskCounter.Add(1)
		go lsnr.runConnection(connLogger, conn, slot, source)
	}
	lsnr.logger.Info("end accept loop")

	// mark the listener itself as done, note there could still be established connections
	lsnr.taskCounter.Done()
}

func (lsnr *tcpFragmentListener) runConnection(connLogger logger.Logger, conn *net.TCPConn, slot *admission.Slot, source string) {
	defer lsnr.taskCounter.Done()
	defer slot.Release()
	connLogger.Info("started")

	connAborter := lsnr.launchConnectionCloser(connLogger, conn)

	connReader := lsnr.createConnectionReader(connLogger, conn)
	splitter := newFragmentSplitter(int(lsnr.config.MaxMessageSize.Bytes()), func(fragment []byte) error {
		if !lsnr.gate.Admit(source) {
			// violation is already counted; the fragment is dropped, the connection survives
			return nil
		}
		lsnr.metrics.OnFragment(len(fragment))
		return lsnr.receiver.Accept(fragment)
	})

	chunk := make([]byte, defs.InputReadChunkBytes)
	for {
		numBytes, err := connReader.Read(chunk)
		if numBytes > 0 {
			if ferr := splitter.Feed(chunk[:numBytes]); ferr != nil {
				connLogger.Warn("dropped connection: ", ferr)
				lsnr.metrics.OnOversized()
				connAborter.Signal()
				break
			}
		}
		if err == nil {
			continue
		}
		if util.IsNetworkTimeout(err) {
			// a silent peer may not pin a connection slot; pending data is incomplete anyway
			connLogger.Info("closed idle connection")
			connAborter.Signal()
			break
		}
		if util.IsNetworkClosed(err) && lsnr.stopRequest.Peek() {
			// already closed by connAborter
			connLogger.Info("closed by stop request (delayed)")
		} else {
			if !util.IsNetworkClosed(err) {
				connLogger.Warn("read() error: ", err)
			}
			connAborter.Signal()
		}
		break
	}

	if remainder := splitter.PendingBytes(); remainder > 0 {
		connLogger.Infof("discarded %d bytes of unterminated message", remainder)
	}
	connLogger.Info("ended")
}

func (lsnr *tcpFragmentListener) launchConnectionCloser(connLogger logger.Logger, conn *net.TCPConn) *channels.SignalAwaitable {
	abortConn := channels.NewSignalAwaitable()
	// background goroutine to wait and close the connection on request or after shutdown grace
	go func() {
		channels.AnyAwaitables(lsnr.stopTimeout, abortConn).Next(func() {
			if abortConn.Peek() {
				connLogger.Info("abort connection")
			} else {
				connLogger.Info("close connection on stop request")
			}
		}).WaitForever()
		conn.Close()
	}()
	return abortConn
}

func (lsnr *tcpFragmentListener) createConnectionReader(connLogger logger.Logger, conn *net.TCPConn) *util.NetConnWrapper {
	if err := conn.SetKeepAlive(true); err != nil {
		connLogger.Warnf("error enabling keep-alive: %s", err.Error())
	}

	if sz, err := util.TrySetTCPReadBuffer(conn, tcpLastReadBufferSize, tcpReadBufferMin); err != nil {
		connLogger.Warnf("error changing buffer size: %s", err.Error())
	} else {
		connLogger.Infof("set TCP buffer size: %d", sz)
		tcpLastReadBufferSize = sz
	}

	return util.WrapNetConn(conn, defs.InputReadTimeout)
}

// sourceAddress strips the ephemeral port so rate limiting keys on the host address
func sourceAddress(conn *net.TCPConn) string {
	remote := conn.RemoteAddr().String()
	if host, _, err := net.SplitHostPort(remote); err == nil {
		return host
	}
	return remote
}
