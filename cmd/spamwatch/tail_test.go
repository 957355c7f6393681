package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/alfredjeanlab/spamwatch/internal/events"
	"github.com/alfredjeanlab/spamwatch/internal/model"
	"github.com/alfredjeanlab/spamwatch/internal/protocol"
)

func mustJSON(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

func TestFormatEvent(t *testing.T) {
	for _, tc := range []struct {
		name string
		msg  events.Message
		want []string
	}{
		{
			"tx",
			events.Message{Topic: events.TopicTxObserved, Data: mustJSON(t, events.TxObserved{Hash: "0xaa", Count: 2, Timestamp: t0})},
			[]string{"tx", "0xaa", "x2"},
		},
		{
			"state",
			events.Message{Topic: events.TopicStateChanged, Data: mustJSON(t, events.StateChanged{Running: true, Timestamp: t0})},
			[]string{"spammer running"},
		},
		{
			"connection",
			events.Message{Topic: events.TopicConnectionChanged, Data: mustJSON(t, events.ConnectionChanged{Status: model.Connected, Timestamp: t0})},
			[]string{"connection connected"},
		},
		{
			"summary",
			events.Message{
				Topic: events.MetricTopic(protocol.Summary),
				Data: mustJSON(t, events.MetricObserved{
					Kind:      protocol.Summary,
					Summary:   &protocol.MetricSummary{TPS: 7.25, ErrorRate: 0.5},
					Timestamp: t0,
				}),
			},
			[]string{"summary", "tps 7.25", "errors 50.0%"},
		},
		{
			"metric with tx",
			events.Message{
				Topic: events.MetricTopic(protocol.IncFailedTx),
				Data: mustJSON(t, events.MetricObserved{
					Kind:      protocol.IncFailedTx,
					Tx:        &protocol.Tx{Hash: "0xbad", Count: 1},
					Timestamp: t0,
				}),
			},
			[]string{"inc_failed_tx", "0xbad"},
		},
		{
			"undecodable",
			events.Message{Topic: events.TopicTxObserved, Data: []byte("not json")},
			[]string{events.TopicTxObserved, "not json"},
		},
		{
			"unknown topic",
			events.Message{Topic: "spamwatch.other", Data: []byte(`{"x":1}`)},
			[]string{"spamwatch.other", `{"x":1}`},
		},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got := formatEvent(tc.msg)
			for _, want := range tc.want {
				if !strings.Contains(got, want) {
					t.Errorf("formatEvent = %q, missing %q", got, want)
				}
			}
		})
	}
}

func TestPrintEvent_JSON(t *testing.T) {
	jsonOutput = true
	t.Cleanup(func() { jsonOutput = false })

	var buf bytes.Buffer
	msg := events.Message{Topic: events.TopicStateChanged, Data: []byte(`{"running":true}`)}
	if err := printEvent(&buf, msg); err != nil {
		t.Fatal(err)
	}
	var got struct {
		Topic string          `json:"topic"`
		Data  json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Topic != events.TopicStateChanged || string(got.Data) != `{"running":true}` {
		t.Fatalf("got %+v", got)
	}
}
