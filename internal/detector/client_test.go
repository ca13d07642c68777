package detector

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rxledger/rxledger/internal/detection"
	"github.com/rxledger/rxledger/internal/errors"
	"github.com/rxledger/rxledger/internal/logger"
	"github.com/rxledger/rxledger/internal/observability/metrics"
)

const testURL = "http://detector.test"

func newMockedClient(t *testing.T, timeout time.Duration) (*Client, *httpmock.MockTransport, *metrics.TestRecorder) {
	t.Helper()

	transport := httpmock.NewMockTransport()
	recorder := metrics.NewTestRecorder()
	c, err := New(Config{URL: testURL + "/", Timeout: timeout, Transport: transport},
		logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC), recorder)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c, transport, recorder
}

func TestNewRequiresURL(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration))
}

func TestDetectSendsMultipartImage(t *testing.T) {
	t.Parallel()

	c, transport, recorder := newMockedClient(t, time.Second)
	image := []byte{0xff, 0xd8, 0xff, 0xe0, 1, 2, 3}

	transport.RegisterResponder(http.MethodPost, testURL+"/api/verify",
		func(req *http.Request) (*http.Response, error) {
			file, header, err := req.FormFile("image")
			if err != nil {
				return httpmock.NewStringResponse(http.StatusBadRequest, err.Error()), nil
			}
			defer file.Close()
			got, _ := io.ReadAll(file)
			if header.Filename != "image.jpg" || header.Header.Get("Content-Type") != "image/jpeg" || string(got) != string(image) {
				return httpmock.NewStringResponse(http.StatusBadRequest, "bad upload"), nil
			}
			return httpmock.NewStringResponse(http.StatusOK, `{
				"status": "success",
				"detections": [
					{"bbox": [10, 20, 110, 220], "stage1_label": "box", "stage1_confidence": 0.9,
					 "stage2_label": "genuine", "stage2_confidence": 0.97, "combined_result": "GENUINE"},
					{"bbox": [200, 20, 300, 220], "stage1_label": "box", "stage1_confidence": 0.8,
					 "combined_result": "COUNTERFEIT"}
				]}`), nil
		})

	got, err := c.Detect(t.Context(), image)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, detection.ResultGenuine, got[0].Combined)
	assert.InDelta(t, 0.97, got[0].Confidence(), 1e-9)
	assert.Equal(t, detection.BBox{X1: 200, Y1: 20, X2: 300, Y2: 220}, got[1].BBox)
	assert.InDelta(t, 0.8, got[1].Confidence(), 1e-9)

	assert.Equal(t, 1, transport.GetCallCountInfo()["POST "+testURL+"/api/verify"])
	assert.Equal(t, 1, recorder.GetOperationCount(metrics.OpDetect, metrics.StatusSuccess))
}

func TestDetectResponseShapes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		body string
		want []detection.Detection
	}{
		{
			name: "empty detections",
			body: `{"status":"success","detections":[]}`,
			want: []detection.Detection{},
		},
		{
			name: "legacy single result without bbox",
			body: `{"status":"success","message":"ok","result":"GENUINE","confidence":0.95,"bbox":null}`,
			want: []detection.Detection{{
				Stage1Label:      "GENUINE",
				Stage1Confidence: 0.95,
				Combined:         detection.ResultGenuine,
			}},
		},
		{
			name: "legacy single result with bbox",
			body: `{"status":"success","result":"suspicious","confidence":0.5,"bbox":[1,2,3,4]}`,
			want: []detection.Detection{{
				BBox:             detection.BBox{X1: 1, Y1: 2, X2: 3, Y2: 4},
				Stage1Label:      "SUSPICIOUS",
				Stage1Confidence: 0.5,
				Combined:         detection.ResultSuspicious,
			}},
		},
		{
			name: "no result at all",
			body: `{"status":"success","message":"nothing found"}`,
			want: []detection.Detection{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, transport, _ := newMockedClient(t, time.Second)
			transport.RegisterResponder(http.MethodPost, testURL+"/api/verify",
				httpmock.NewStringResponder(http.StatusOK, tt.body))

			got, err := c.Detect(t.Context(), []byte("img"))
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectErrorKinds(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		responder httpmock.Responder
		want      error
		category  errors.ErrorCategory
	}{
		{
			name:      "connection refused",
			responder: httpmock.NewErrorResponder(errors.NewStd("dial tcp 127.0.0.1:5000: connect: connection refused")),
			want:      ErrUnreachable,
			category:  errors.CategoryDetector,
		},
		{
			name:      "server error",
			responder: httpmock.NewStringResponder(http.StatusInternalServerError, "boom"),
			want:      ErrProtocol,
			category:  errors.CategoryDetector,
		},
		{
			name:      "malformed body",
			responder: httpmock.NewStringResponder(http.StatusOK, "<html>ngrok</html>"),
			want:      ErrProtocol,
			category:  errors.CategoryDetector,
		},
		{
			name:      "unknown verdict",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"detections":[{"bbox":[0,0,1,1],"combined_result":"MAYBE"}]}`),
			want:      ErrProtocol,
			category:  errors.CategoryDetector,
		},
		{
			name:      "service reported error",
			responder: httpmock.NewStringResponder(http.StatusOK, `{"status":"error","message":"model not loaded"}`),
			want:      ErrProtocol,
			category:  errors.CategoryDetector,
		},
		{
			name: "slow service",
			responder: func(req *http.Request) (*http.Response, error) {
				<-req.Context().Done()
				return nil, req.Context().Err()
			},
			want:     ErrTimeout,
			category: errors.CategoryTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, transport, recorder := newMockedClient(t, 50*time.Millisecond)
			transport.RegisterResponder(http.MethodPost, testURL+"/api/verify", tt.responder)

			got, err := c.Detect(t.Context(), []byte("img"))
			require.Error(t, err)
			assert.Nil(t, got)
			require.ErrorIs(t, err, tt.want)
			assert.Equal(t, tt.category, errors.CategoryOf(err))
			assert.Equal(t, 1, recorder.GetOperationCount(metrics.OpDetect, metrics.StatusError))
		})
	}
}

func TestDetectHonoursCallerDeadline(t *testing.T) {
	t.Parallel()

	c, transport, _ := newMockedClient(t, time.Minute)
	transport.RegisterResponder(http.MethodPost, testURL+"/api/verify",
		func(req *http.Request) (*http.Response, error) {
			<-req.Context().Done()
			return nil, req.Context().Err()
		})

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()

	_, err := c.Detect(ctx, []byte("img"))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestRateLimiterRespectsContext(t *testing.T) {
	t.Parallel()

	transport := httpmock.NewMockTransport()
	transport.RegisterResponder(http.MethodPost, testURL+"/api/verify",
		httpmock.NewStringResponder(http.StatusOK, `{"detections":[]}`))

	c, err := New(Config{URL: testURL, Timeout: time.Second, RateLimit: 0.001, RateBurst: 1, Transport: transport},
		logger.NewSlogLogger(io.Discard, logger.LogLevelError, time.UTC), nil)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Detect(t.Context(), []byte("img"))
	require.NoError(t, err)

	// the next token is ~1000s away, far past this deadline
	ctx, cancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Detect(ctx, []byte("img"))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, transport.GetCallCountInfo()["POST "+testURL+"/api/verify"])
}

func TestHealth(t *testing.T) {
	t.Parallel()

	c, transport, _ := newMockedClient(t, time.Second)
	transport.RegisterResponder(http.MethodGet, testURL+"/health",
		httpmock.NewStringResponder(http.StatusOK, `{"status":"healthy","service":"vision-inspection"}`))
	require.NoError(t, c.Health(t.Context()))

	transport.RegisterResponder(http.MethodGet, testURL+"/health",
		httpmock.NewStringResponder(http.StatusServiceUnavailable, ""))
	require.ErrorIs(t, c.Health(t.Context()), ErrProtocol)

	transport.RegisterResponder(http.MethodGet, testURL+"/health",
		httpmock.NewErrorResponder(errors.NewStd("no route to host")))
	require.ErrorIs(t, c.Health(t.Context()), ErrUnreachable)
}
