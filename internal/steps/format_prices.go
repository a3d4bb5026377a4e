package steps

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/shaiso/Stockpipe/internal/domain"
	"github.com/shaiso/Stockpipe/internal/objectstore"
	"github.com/shaiso/Stockpipe/internal/remotejob"
	"github.com/shaiso/Stockpipe/internal/stage"
)

// FormattedDir — подкаталог с результатом форматирования.
const FormattedDir = "formatted_prices"

// Параметры задачи форматирования по умолчанию.
const (
	DefaultFormatImage   = "airflow/stock-app"
	DefaultFormatName    = "format_prices"
	DefaultFormatNetwork = "container:spark-master"
)

// FormatPrices запускает внешнюю задачу форматирования prices.json в CSV.
//
// Вход — ссылка на prices.json. Перед запуском каталог formatted_prices/
// очищается, поэтому повтор не оставляет CSV прошлых попыток.
// Выход — ссылка на префикс <bucket>/<SYMBOL>/formatted_prices/.
type FormatPrices struct {
	Job     remotejob.Job
	Store   objectstore.Store
	Image   string
	Name    string
	Network string
	Logger  *slog.Logger
}

// Execute реализует stage.Stage.
func (s *FormatPrices) Execute(ctx context.Context, in domain.Reference) (domain.Reference, error) {
	bucket, _, err := in.Object()
	if err != nil {
		return "", stage.Fatal(fmt.Errorf("%w: %w", ErrBadInput, err))
	}
	dir, err := in.Dir()
	if err != nil {
		return "", stage.Fatal(fmt.Errorf("%w: %w", ErrBadInput, err))
	}

	prefix := dir + "/" + FormattedDir + "/"
	if err := s.Store.RemovePrefix(ctx, bucket, prefix); err != nil {
		return "", stage.Recoverable(fmt.Errorf("clean %s/%s: %w", bucket, prefix, err))
	}

	spec := remotejob.Spec{
		Name:    orDefault(s.Name, DefaultFormatName),
		Image:   orDefault(s.Image, DefaultFormatImage),
		Network: orDefault(s.Network, DefaultFormatNetwork),
		Env: map[string]string{
			"SPARK_APPLICATION_ARGS": bucket + "/" + dir,
		},
	}

	done, err := s.Job.Invoke(ctx, spec)
	if err != nil {
		if errors.Is(err, remotejob.ErrAbnormalExit) || errors.Is(err, remotejob.ErrInvalidSpec) {
			return "", stage.Fatal(err)
		}
		return "", stage.Recoverable(err)
	}

	out := domain.ObjectRef(bucket, prefix)
	logger(s.Logger).Info("prices formatted", "ref", out, "duration", done.Duration)
	return out, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
