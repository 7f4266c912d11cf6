package transaction

import (
	"log/slog"

	"braces.dev/errtrace"

	"github.com/new-neon/sippet/log"
	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/transport"
)

// Layer is the transaction layer: it implements transport.TxFactory,
// dispatching each new transaction to the ICT/NICT/IST/NIST machine
// its request's method calls for, and is the single point through
// which those machines reach the TU (dialog/UAS) above them.
type Layer struct {
	timings Timings
	tu      Delegate
	metrics Metrics
	log     *slog.Logger
}

// NewLayer builds a Layer. tu receives every transaction's upward
// events (spec S. 4.4's "pass up" and "TU sends" language); it is
// typically the dialog layer, or a stateful proxy/registrar core.
// metrics may be nil, in which case no transaction ever calls into it.
func NewLayer(timings Timings, tu Delegate, metrics Metrics, logger *slog.Logger) *Layer {
	if logger == nil {
		logger = log.Noop
	}
	return &Layer{timings: timings, tu: tu, metrics: metrics, log: logger}
}

// CreateClientTransaction implements transport.TxFactory.
func (l *Layer) CreateClientTransaction(
	req *message.Request, id transport.TxID, ch transport.Channel, netDel transport.TxDelegate,
) (transport.ClientTx, error) {
	if req.Method == message.MethodINVITE {
		tx, err := newClientInvite(req, id, ch, netDel, l.tu, l.timings, l.metrics, l.log)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		return tx, nil
	}
	tx, err := newClientNonInvite(req, id, ch, netDel, l.tu, l.timings, l.metrics, l.log)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return tx, nil
}

// CreateServerTransaction implements transport.TxFactory.
func (l *Layer) CreateServerTransaction(
	req *message.Request, id transport.TxID, ch transport.Channel, netDel transport.TxDelegate,
) (transport.ServerTx, error) {
	if req.Method == message.MethodINVITE {
		tx, err := newServerInvite(req, id, ch, netDel, l.tu, l.timings, l.metrics, l.log)
		if err != nil {
			return nil, errtrace.Wrap(err)
		}
		return tx, nil
	}
	tx, err := newServerNonInvite(req, id, ch, netDel, l.tu, l.timings, l.metrics, l.log)
	if err != nil {
		return nil, errtrace.Wrap(err)
	}
	return tx, nil
}
