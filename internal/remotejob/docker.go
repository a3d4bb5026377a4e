package remotejob

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"time"
)

// outputLimit — сколько байт вывода задачи сохраняется в Completion.
const outputLimit = 4096

// DockerConfig — конфигурация DockerJob.
type DockerConfig struct {
	// Bin — путь к docker CLI. По умолчанию "docker".
	Bin string

	// Host — адрес docker daemon (DOCKER_HOST), например "tcp://docker-proxy:2375".
	// Пустой — локальный daemon.
	Host string

	Logger *slog.Logger
}

// DockerJob запускает задачу через docker CLI.
type DockerJob struct {
	bin    string
	host   string
	logger *slog.Logger
}

// NewDockerJob создаёт DockerJob.
func NewDockerJob(cfg DockerConfig) *DockerJob {
	j := &DockerJob{
		bin:    strings.TrimSpace(cfg.Bin),
		host:   strings.TrimSpace(cfg.Host),
		logger: cfg.Logger,
	}
	if j.bin == "" {
		j.bin = "docker"
	}
	if j.logger == nil {
		j.logger = slog.Default()
	}
	return j
}

// Invoke запускает контейнер и ждёт его завершения.
//
// Перед запуском удаляется оставшийся от прерванной попытки контейнер
// с тем же именем.
func (j *DockerJob) Invoke(ctx context.Context, spec Spec) (Completion, error) {
	if strings.TrimSpace(spec.Image) == "" {
		return Completion{}, fmt.Errorf("%w: image is required", ErrInvalidSpec)
	}

	if spec.Name != "" {
		// Ошибка "No such container" здесь ожидаема
		_ = exec.CommandContext(ctx, j.bin, j.withHost("rm", "-f", spec.Name)...).Run()
	}

	args := j.withHost(RunArgs(spec)...)
	j.logger.Info("starting remote job", "image", spec.Image, "name", spec.Name, "host", j.host)

	start := time.Now()
	out, err := exec.CommandContext(ctx, j.bin, args...).CombinedOutput()
	completion := Completion{
		Output:   tail(strings.TrimSpace(string(out)), outputLimit),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			completion.ExitCode = exitErr.ExitCode()
			return completion, fmt.Errorf("%w: %s exit code %d: %s",
				ErrAbnormalExit, spec.Image, completion.ExitCode, tail(completion.Output, 512))
		}
		return completion, fmt.Errorf("docker run %s: %w", spec.Image, err)
	}

	j.logger.Info("remote job finished", "image", spec.Image, "duration", completion.Duration)
	return completion, nil
}

func (j *DockerJob) withHost(args ...string) []string {
	if j.host == "" {
		return args
	}
	return append([]string{"-H", j.host}, args...)
}

// RunArgs строит аргументы `docker run` для spec.
// Переменные окружения сортируются по имени.
func RunArgs(spec Spec) []string {
	args := []string{"run", "--rm"}
	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}

	keys := make([]string, 0, len(spec.Env))
	for k := range spec.Env {
		if strings.TrimSpace(k) != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		args = append(args, "-e", k+"="+spec.Env[k])
	}

	return append(args, spec.Image)
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
