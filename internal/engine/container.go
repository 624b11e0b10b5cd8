package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/hbomb79/Verto/pkg/logger"
)

// containerWorkDir is the path the engine workspace is mounted at inside
// each FFmpeg container.
const containerWorkDir = "/work"

// ContainerEngine runs FFmpeg inside a short-lived Docker container per
// invocation. The engine workspace is bind-mounted in to the container, and
// outputs are returned in memory rather than as host paths.
type ContainerEngine struct {
	*workspace
	config Config
	cliMu  *sync.RWMutex
	cli    client.APIClient
}

func NewContainerEngine(config Config) *ContainerEngine {
	return &ContainerEngine{workspace: newWorkspace(config.WorkDir), config: config, cliMu: &sync.RWMutex{}}
}

// Load connects to the Docker daemon, and ensures the configured FFmpeg
// image is available locally, pulling it if needed.
func (engine *ContainerEngine) Load(ctx context.Context) error {
	engine.cliMu.Lock()
	defer engine.cliMu.Unlock()
	if engine.cli != nil {
		return nil
	}

	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return fmt.Errorf("failed to create docker client: %w", err)
	}

	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return fmt.Errorf("docker daemon is unreachable: %w", err)
	}

	if err := ensureImage(ctx, cli, engine.config.ContainerImage); err != nil {
		cli.Close()
		return err
	}

	if _, err := engine.open(); err != nil {
		cli.Close()
		return err
	}

	engine.cli = cli
	log.Emit(logger.SUCCESS, "Container engine loaded (image=%s)\n", engine.config.ContainerImage)
	return nil
}

func ensureImage(ctx context.Context, cli client.APIClient, image string) error {
	if _, _, err := cli.ImageInspectWithRaw(ctx, image); err == nil {
		return nil
	} else if !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to inspect image %s: %w", image, err)
	}

	log.Emit(logger.INFO, "Pulling FFmpeg image %s...\n", image)
	out, err := cli.ImagePull(ctx, image, types.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}
	defer out.Close()

	// The pull only completes once the progress stream is drained
	if _, err := io.Copy(io.Discard, out); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", image, err)
	}

	log.Emit(logger.SUCCESS, "Pulled FFmpeg image %s\n", image)
	return nil
}

func (engine *ContainerEngine) client() (client.APIClient, error) {
	engine.cliMu.RLock()
	defer engine.cliMu.RUnlock()
	if engine.cli == nil {
		return nil, ErrNotLoaded
	}

	return engine.cli, nil
}

func (engine *ContainerEngine) Stage(ctx context.Context, inputs []Input) error {
	if _, err := engine.client(); err != nil {
		return err
	}

	return engine.stage(inputs)
}

// Execute creates, runs and removes a container which invokes FFmpeg with the
// arguments provided.
func (engine *ContainerEngine) Execute(ctx context.Context, args []string) error {
	cli, err := engine.client()
	if err != nil {
		return err
	}

	root, err := engine.dir()
	if err != nil {
		return err
	}

	containerConfig := &container.Config{
		Image:      engine.config.ContainerImage,
		Entrypoint: []string{engine.config.ContainerBinPath},
		Cmd:        append([]string{"-y", "-hide_banner", "-nostdin"}, args...),
		WorkingDir: containerWorkDir,
	}
	hostConfig := &container.HostConfig{
		Mounts: []mount.Mount{
			{
				Type:   mount.TypeBind,
				Source: root,
				Target: containerWorkDir,
			},
		},
	}

	resp, err := cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "")
	if err != nil {
		engine.failed.Store(true)
		return &ExecError{Args: args, ExitCode: -1, Err: fmt.Errorf("failed to create container: %w", err)}
	}
	defer func() {
		// The invocation context may already be cancelled
		if err := cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); err != nil {
			log.Emit(logger.WARNING, "Failed to remove FFmpeg container %s: %v\n", resp.ID, err)
		}
	}()

	log.Emit(logger.DEBUG, "Executing ffmpeg %s in container %s\n", strings.Join(args, " "), resp.ID)
	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		engine.failed.Store(true)
		return &ExecError{Args: args, ExitCode: -1, Err: fmt.Errorf("failed to start container: %w", err)}
	}

	statusCh, errCh := cli.ContainerWait(ctx, resp.ID, container.WaitConditionNotRunning)
	select {
	case err := <-errCh:
		engine.failed.Store(true)
		return &ExecError{Args: args, ExitCode: -1, Err: err}
	case status := <-statusCh:
		if status.StatusCode == 0 {
			engine.failed.Store(false)
			return nil
		}

		engine.failed.Store(true)
		return &ExecError{Args: args, ExitCode: int(status.StatusCode), Stderr: engine.logs(ctx, cli, resp.ID)}
	}
}

// logs returns the trailing stderr lines of the container provided.
func (engine *ContainerEngine) logs(ctx context.Context, cli client.APIClient, id string) []string {
	reader, err := cli.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStderr: true,
		Tail:       strconv.Itoa(engine.config.StderrTail),
	})
	if err != nil {
		log.Emit(logger.WARNING, "Failed to read logs of FFmpeg container %s: %v\n", id, err)
		return nil
	}
	defer reader.Close()

	stderr := &bytes.Buffer{}
	if _, err := stdcopy.StdCopy(io.Discard, stderr, reader); err != nil {
		log.Emit(logger.WARNING, "Failed to demultiplex logs of FFmpeg container %s: %v\n", id, err)
	}

	return tail(stderr.String(), engine.config.StderrTail)
}

// ReadOutput reads the named artifact in to memory.
func (engine *ContainerEngine) ReadOutput(ctx context.Context, name string) (Output, error) {
	data, err := engine.read(name)
	if err != nil {
		return Output{}, err
	}

	return Output{Data: data}, nil
}

func (engine *ContainerEngine) Remove(ctx context.Context, name string) error {
	return engine.remove(name)
}

// Shutdown closes the connection to the Docker daemon.
func (engine *ContainerEngine) Shutdown(ctx context.Context) error {
	engine.cliMu.Lock()
	defer engine.cliMu.Unlock()
	if engine.cli == nil {
		return nil
	}

	err := engine.cli.Close()
	engine.cli = nil
	log.Emit(logger.STOP, "Container engine shut down\n")
	return err
}

// Close shuts the engine down and deletes its workspace.
func (engine *ContainerEngine) Close() error {
	if err := engine.Shutdown(context.Background()); err != nil {
		log.Emit(logger.WARNING, "Failed to close docker client: %v\n", err)
	}

	return engine.destroy()
}

func (engine *ContainerEngine) Native() bool { return false }
