package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/new-neon/sippet/message"
	"github.com/new-neon/sippet/metrics"
	"github.com/new-neon/sippet/transaction"
	"github.com/new-neon/sippet/transport"
)

func TestRecorder_ChannelContextLifecycle(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)

	r.ChannelContextOpened(transport.UDP)
	r.ChannelContextOpened(transport.UDP)
	r.ChannelContextClosed(transport.UDP)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	found := map[string]bool{}
	for _, mf := range mfs {
		switch mf.GetName() {
		case "sip_transport_channel_contexts_opened_total":
			if got := mf.Metric[0].GetCounter().GetValue(); got != 2 {
				t.Errorf("opened_total = %v, want 2", got)
			}
			found["opened"] = true
		case "sip_transport_channel_contexts_active":
			if got := mf.Metric[0].GetGauge().GetValue(); got != 1 {
				t.Errorf("active = %v, want 1", got)
			}
			found["active"] = true
		}
	}
	if !found["opened"] || !found["active"] {
		t.Fatalf("missing expected metric families: %v", found)
	}
}

func TestRecorder_RetransmitsAndTerminations(t *testing.T) {
	reg := prometheus.NewRegistry()
	r := metrics.New(reg)

	r.Retransmit(message.MethodINVITE)
	r.Retransmit(message.MethodINVITE)
	r.Retransmit(message.MethodBYE)
	r.TransactionTerminated(transaction.ReasonTimedOut)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	for _, mf := range mfs {
		switch mf.GetName() {
		case "sip_transaction_retransmits_total":
			total := 0.0
			for _, m := range mf.Metric {
				total += m.GetCounter().GetValue()
			}
			if total != 3 {
				t.Errorf("retransmits_total sum = %v, want 3", total)
			}
		case "sip_transaction_terminations_total":
			if got := mf.Metric[0].GetCounter().GetValue(); got != 1 {
				t.Errorf("terminations_total = %v, want 1", got)
			}
			if got := mf.Metric[0].GetLabel()[0].GetValue(); got != string(transaction.ReasonTimedOut) {
				t.Errorf("reason label = %q, want %q", got, transaction.ReasonTimedOut)
			}
		}
	}
}
