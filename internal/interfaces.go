package internal

import (
	"context"

	"github.com/IBM/fp-go/v2/ioeither"

	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/grant"
	"github.com/Qubut/IP-Claim/packages/grant_processor/internal/parse"
	T "github.com/Qubut/IP-Claim/packages/grant_processor/internal/typing"
)

type DownloaderInterface interface {
	FetchFiles(ctx context.Context) ioeither.IOEither[error, []int64]
}

type ExtractorInterface interface {
	ExtractAll(ctx context.Context, dir string) ioeither.IOEither[error, T.Unit]
}

type ParserInterface interface {
	StreamFile(ctx context.Context, path string, limit int, visit func(*grant.Grant) error) (parse.Stats, error)
	ExportAll(ctx context.Context) error
}
