package rest

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/krew-solutions/ascetic-ops-go/asceticops/session"
	"github.com/krew-solutions/ascetic-ops-go/asceticops/signals"
)

var hostname string

func init() {
	hostname, _ = os.Hostname()
}

type observableTransport struct {
	base             http.RoundTripper
	onRequestStarted signals.Signal[session.RequestStartedEvent]
	onRequestEnded   signals.Signal[session.RequestEndedEvent]
}

func newObservableTransport(base http.RoundTripper) *observableTransport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &observableTransport{
		base:             base,
		onRequestStarted: signals.NewSignal[session.RequestStartedEvent](),
		onRequestEnded:   signals.NewSignal[session.RequestEndedEvent](),
	}
}

func (t *observableTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	label := fmt.Sprintf(
		"asceticops.%s.%s.%s.%s",
		hostname, req.Method, req.URL.Host, req.URL.Path,
	)
	requestView := &session.RequestViewModel{
		TimeStart: time.Now(),
		Label:     label,
	}

	if err := t.onRequestStarted.Notify(session.RequestStartedEvent{
		Sender:      t,
		RequestView: requestView,
	}); err != nil {
		return nil, err
	}

	resp, err := t.base.RoundTrip(req)

	responseTime := time.Since(requestView.TimeStart)
	requestView.ResponseTime = &responseTime
	if resp != nil {
		status := resp.StatusCode
		requestView.Status = &status
	}

	if endErr := t.onRequestEnded.Notify(session.RequestEndedEvent{
		Sender:      t,
		RequestView: requestView,
	}); endErr != nil && err == nil {
		if resp != nil {
			resp.Body.Close()
		}
		return nil, endErr
	}

	return resp, err
}
