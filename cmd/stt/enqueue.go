package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"interview-stt-go/internal/config"
	"interview-stt-go/internal/manifest"
	"interview-stt-go/internal/queue"
	"interview-stt-go/internal/store"
	"interview-stt-go/internal/types"
)

var enqueueOpts struct {
	user      string
	interview string
	audio     string
	manifest  string
}

var enqueueCmd = &cobra.Command{
	Use:   "enqueue",
	Short: "Queue transcription tasks for one interview or a manifest",
	Long: `Enqueue queues a transcription task for --user/--interview, or for every
row of an xlsx --manifest. Manifest rows without an interview id create a
new interview from their audio location first.`,
	RunE: runEnqueue,
}

func init() {
	f := enqueueCmd.Flags()
	f.StringVar(&enqueueOpts.user, "user", "", "owner user id")
	f.StringVar(&enqueueOpts.interview, "interview", "", "interview id")
	f.StringVar(&enqueueOpts.audio, "audio", "", "override the stored audio location")
	f.StringVar(&enqueueOpts.manifest, "manifest", "", "xlsx manifest of interviews")
	rootCmd.AddCommand(enqueueCmd)
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	var entries []manifest.Entry
	var skipped []manifest.Skipped
	if enqueueOpts.manifest != "" {
		var err error
		entries, skipped, err = manifest.Load(enqueueOpts.manifest)
		if err != nil {
			return err
		}
	} else {
		user, err := uuid.Parse(enqueueOpts.user)
		if err != nil {
			return fmt.Errorf("--user: %w", err)
		}
		id, err := uuid.Parse(enqueueOpts.interview)
		if err != nil {
			return fmt.Errorf("--interview: %w", err)
		}
		entries = []manifest.Entry{{UserID: user, InterviewID: id, AudioLocation: enqueueOpts.audio}}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.close()
	if a.cfg.Queue.Backend == config.QueueMemory {
		return errors.New("enqueue needs a shared queue; set QUEUE_BACKEND=redis")
	}

	queued, more := enqueueEntries(ctx, a.store, a.queue, entries, a.log.Entry)
	skipped = append(skipped, more...)
	for _, s := range skipped {
		a.log.WithFields(logrus.Fields{"row": s.Row, "reason": s.Reason}).Warn("entry skipped")
	}
	fmt.Fprintf(cmd.OutOrStdout(), "queued %d, skipped %d\n", queued, len(skipped))
	return nil
}

// enqueueEntries queues one task per usable entry, creating interviews for
// entries that name none.
func enqueueEntries(ctx context.Context, st store.Store, q queue.Queue, entries []manifest.Entry, log *logrus.Entry) (int, []manifest.Skipped) {
	var skipped []manifest.Skipped
	queued := 0
	for _, e := range entries {
		iv, created, err := resolveEntry(ctx, st, e)
		if err != nil {
			skipped = append(skipped, manifest.Skipped{Row: e.Row, Reason: err.Error()})
			continue
		}
		audio := e.AudioLocation
		if audio == "" {
			audio = iv.AudioLocation
		}
		task := queue.NewTask(iv.CreatorID, iv.ID, audio)
		if err := q.Enqueue(ctx, task); err != nil {
			if created {
				if dErr := st.DeleteInterview(ctx, iv.CreatorID, iv.ID); dErr != nil {
					log.WithError(dErr).WithField("interview_id", iv.ID.String()).Error("rollback failed")
				}
			}
			skipped = append(skipped, manifest.Skipped{Row: e.Row, Reason: err.Error()})
			continue
		}
		log.WithFields(logrus.Fields{"task_id": task.ID, "interview_id": iv.ID.String()}).Info("transcription queued")
		queued++
	}
	return queued, skipped
}

// resolveEntry reports whether it created the interview.
func resolveEntry(ctx context.Context, st store.Store, e manifest.Entry) (*types.Interview, bool, error) {
	if e.InterviewID == uuid.Nil {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			name = strings.TrimSuffix(filepath.Base(e.AudioLocation), filepath.Ext(e.AudioLocation))
		}
		iv := &types.Interview{CreatorID: e.UserID, Name: name, AudioLocation: e.AudioLocation}
		if err := st.CreateInterview(ctx, iv); err != nil {
			return nil, false, err
		}
		return iv, true, nil
	}

	iv, err := st.GetInterview(ctx, e.UserID, e.InterviewID)
	if err != nil {
		return nil, false, err
	}
	if iv == nil {
		return nil, false, fmt.Errorf("interview %s not found", e.InterviewID)
	}
	if iv.Status.Terminal() {
		return nil, false, fmt.Errorf("interview %s is already %s", iv.ID, iv.Status)
	}
	return iv, false, nil
}
