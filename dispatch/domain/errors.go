package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidConfig é retornado antes de qualquer tarefa ser criada.
	ErrInvalidConfig = errors.New("invalid dispatch config")

	// ErrLogic indica violação do invariante do gate (release sem acquire).
	// É bug de quem usa o gate, nunca condição de runtime.
	ErrLogic = errors.New("admission gate logic error")

	// ErrTaskCancelled é retornado quando a tarefa não foi admitida porque o ctx encerrou.
	ErrTaskCancelled = errors.New("task was cancelled")
)

// HandlerError representa uma falha do handler de um item.
type HandlerError struct {
	Label string
	Seq   uint64
	Err   error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("item %q (seq %d) failed: %v", e.Label, e.Seq, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// maxListedCauses limita quantas causas aparecem na mensagem de BatchError.
const maxListedCauses = 5

// BatchError agrega as falhas de um lote que rodou até o fim.
type BatchError struct {
	Total  int
	Failed []error
}

func (e *BatchError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d of %d items failed", len(e.Failed), e.Total)
	for i, err := range e.Failed {
		if i == maxListedCauses {
			fmt.Fprintf(&b, "; and %d more", len(e.Failed)-maxListedCauses)
			break
		}
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		b.WriteString(err.Error())
	}
	return b.String()
}

// Unwrap permite errors.Is/As em todas as causas.
func (e *BatchError) Unwrap() []error { return e.Failed }

// IsHandlerError checa se err (ou alguma causa) é um HandlerError.
func IsHandlerError(err error) bool {
	var he *HandlerError
	return errors.As(err, &he)
}
