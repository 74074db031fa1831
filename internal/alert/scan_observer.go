package alert

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/emperorhan/collection-scanner/internal/domain/event"
	"github.com/emperorhan/collection-scanner/internal/domain/model"
	"github.com/emperorhan/collection-scanner/internal/scanner"
)

const sendTimeout = 10 * time.Second

// maxListedFailures caps the addresses quoted in a probe failure alert.
const maxListedFailures = 10

// ScanObserver raises alerts for aborted scans and for passes where at
// least minFailed probes failed. Delivery happens off the scan goroutine.
type ScanObserver struct {
	alerter   Alerter
	owner     string
	minFailed int
	logger    *slog.Logger
}

var _ scanner.Observer = (*ScanObserver)(nil)

func NewScanObserver(alerter Alerter, owner string, minFailed int, logger *slog.Logger) *ScanObserver {
	if minFailed <= 0 {
		minFailed = 1
	}
	return &ScanObserver{
		alerter:   alerter,
		owner:     owner,
		minFailed: minFailed,
		logger:    logger.With("component", "scan_alerts"),
	}
}

func (o *ScanObserver) OnProgress(event.Progress) {}

func (o *ScanObserver) OnComplete([]model.CollectionRef) {}

func (o *ScanObserver) OnWarning(failed []string) {
	if len(failed) < o.minFailed {
		return
	}
	listed := failed
	if len(listed) > maxListedFailures {
		listed = listed[:maxListedFailures]
	}
	o.dispatch(Alert{
		Type:    AlertTypeProbeFails,
		Owner:   o.owner,
		Title:   "Listing probes failed",
		Message: strings.Join(listed, ", "),
		Fields:  map[string]string{"failed": strconv.Itoa(len(failed))},
	})
}

func (o *ScanObserver) OnError(err error) {
	a := Alert{
		Type:    AlertTypeScanAbort,
		Owner:   o.owner,
		Title:   "Collection scan aborted",
		Message: err.Error(),
	}
	var abort *scanner.BatchAbort
	if errors.As(err, &abort) {
		a.Fields = map[string]string{
			"scan_id": abort.ScanID.String(),
			"batch":   strconv.Itoa(abort.Batch),
		}
	}
	o.dispatch(a)
}

func (o *ScanObserver) dispatch(a Alert) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()
		if err := o.alerter.Send(ctx, a); err != nil {
			o.logger.Warn("scan alert not delivered", "type", a.Type, "error", err)
		}
	}()
}
