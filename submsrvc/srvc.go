package submsrvc

import (
	"context"
	"time"

	"github.com/programme-lv/handin/archive"
	decorator "github.com/programme-lv/handin/srvccqs"
	"github.com/programme-lv/handin/submission"
	"github.com/programme-lv/handin/submsrvc/submcmd"
	"github.com/programme-lv/handin/submsrvc/submquery"
)

type SubmStore interface {
	Get(ctx context.Context, submissionID string) (*submission.Record, error)
	Update(ctx context.Context, submissionID string, upd submission.Update) error
}

type ObjectStore interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, keys []string) error
}

type JobQueue interface {
	Enqueue(ctx context.Context, job archive.Job) error
}

type SubmSrvc struct {
	CompleteUpload submcmd.CompleteUploadCmd
	DeleteSubm     submcmd.DeleteSubmCmd

	GetLifecycle submquery.GetLifecycleQuery
}

func NewSubmSrvc(store SubmStore, objects ObjectStore, queue JobQueue) *SubmSrvc {
	completeUpload := submcmd.CompleteUploadCmdHandler{
		GetSubm:    store.Get,
		UpdateSubm: store.Update,
		Enqueue:    queue.Enqueue,
		Now:        time.Now,
	}

	deleteSubm := submcmd.DeleteSubmCmdHandler{
		GetSubm:       store.Get,
		UpdateSubm:    store.Update,
		ListKeys:      objects.ListKeys,
		DeleteObjects: objects.Delete,
		Now:           time.Now,
	}

	return &SubmSrvc{
		CompleteUpload: decorator.WithCmdLogging[submcmd.CompleteUploadParams]("complete_upload", completeUpload),
		DeleteSubm:     decorator.WithCmdLogging[submcmd.DeleteSubmParams]("delete_submission", deleteSubm),
		GetLifecycle:   submquery.NewGetLifecycleQuery(store.Get),
	}
}
