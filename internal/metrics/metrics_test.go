package metrics

import (
	"context"
	"testing"
	"time"
)

type fakeCounter struct{ n int64 }

func (f *fakeCounter) Count(ctx context.Context) (int64, error) { return f.n, nil }

func TestRecordBeforeRegisterIsNoop(t *testing.T) {
	// Must not panic when nothing is registered yet.
	RecordValidation("path", false)
	RecordRejection("path", "traversal")
	RecordServe()
	RecordUpload("staged")
	ObserveRequest("get_asset", 5*time.Millisecond)
	RecordSync(nil)
	RecordSweep(3)
}

func TestRegisterIsIdempotent(t *testing.T) {
	Register(&fakeCounter{n: 2})
	// A second call must not re-register collectors (MustRegister would panic).
	Register(nil)

	RecordValidation("filename", true)
	RecordValidation("path", false)
	RecordRejection("path", "absolute")
	RecordServe()
	RecordUpload("rejected")
	ObserveRequest("get_asset", 12*time.Millisecond)
	RecordSync(context.DeadlineExceeded)
	RecordSweep(1)
}
