package impl

import "fmt"

type Stage string

const (
	StageDecode    Stage = "decode"
	StageOCR       Stage = "ocr"
	StageTranslate Stage = "translate"
	StageModerate  Stage = "moderate"
	StageRender    Stage = "render"
	StagePersist   Stage = "persist"
)

// StageError reports the stage a page failed in.
type StageError struct {
	Stage  Stage
	PageID string
	Cause  error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("page %s: %s failed: %v", e.PageID, e.Stage, e.Cause)
}

func (e *StageError) Unwrap() error {
	return e.Cause
}

func stageError(stage Stage, pageID string, cause error) *StageError {
	return &StageError{Stage: stage, PageID: pageID, Cause: cause}
}
