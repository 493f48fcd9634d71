package bridge

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sdale511/p3-bridge/internal/delivery"
	"github.com/sdale511/p3-bridge/internal/framer"
	"github.com/sdale511/p3-bridge/internal/p3"
	"github.com/sdale511/p3-bridge/internal/wire"
)

type nullSink struct{}

func (nullSink) IncHTTPSent()        {}
func (nullSink) IncHTTPRetried()     {}
func (nullSink) IncHTTPEnqueued()    {}
func (nullSink) IncHTTPDrainedOK()   {}
func (nullSink) IncHTTPDrainedFail() {}
func (nullSink) SetQueueDepth(int)   {}

func buildPassingFrame(t *testing.T) []byte {
	t.Helper()
	head := []byte{2, 0x01, 0x00, 0x00, 0x00}
	body := []byte{0x01, 0x04, 0x00, 0xDE, 0xAD, 0xBE, 0xEF}
	payload := append(head, body...)
	crc := wire.CRC16(payload)
	payload = append(payload, byte(crc), byte(crc>>8))

	raw := []byte{0x01}
	for _, b := range payload {
		switch b {
		case 0x01, 0x04, 0x10:
			raw = append(raw, 0x10, b^0x20)
		default:
			raw = append(raw, b)
		}
	}
	raw = append(raw, 0x04)
	return raw
}

// TestEndToEndFrameToDelivery pushes one byte-stuffed TCP-stream chunk
// through the framer, parses it into a Record, and delivers it through a
// real Pipeline against an httptest server, confirming the envelope that
// arrives server-side matches what was decoded.
func TestEndToEndFrameToDelivery(t *testing.T) {
	var received delivery.Envelope
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	queue, err := delivery.LoadQueue(filepath.Join(t.TempDir(), "queue.json"))
	require.NoError(t, err)

	cfg := delivery.DefaultConfig()
	cfg.BaseURL = srv.URL
	cfg.Path = "/ingest"
	pipeline := delivery.NewPipeline(cfg, queue, nullSink{}, logrus.New())

	fr := framer.New(0, nil)
	frames := fr.Push(buildPassingFrame(t))
	require.Len(t, frames, 1)

	rec, perr := p3.ParsePayload(frames[0], time.Now())
	require.Nil(t, perr)
	require.True(t, rec.CRC.Ok)

	require.NoError(t, pipeline.Deliver(context.Background(), rec))

	assert.Equal(t, "passing", received.TORName)
	assert.Equal(t, "deadbeef", received.Decoded["transponderId"])
	assert.Equal(t, 0, queue.Len())
}
