package worker

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"syscall"

	"code.cloudfoundry.org/lager/v3"
	"golang.org/x/sys/unix"

	"github.com/alphagov/paas-stats-tallier/pkg/accumulation"
	"github.com/alphagov/paas-stats-tallier/pkg/config"
	"github.com/alphagov/paas-stats-tallier/pkg/listener"
)

// Handle is the coordinator's view of a running worker.
type Handle interface {
	ID() int
	Flush() (*accumulation.State, error)
	Shutdown() (int64, error)
	// Wait blocks until the worker has exited.
	Wait() error
	// Kill stops the worker without a shutdown round-trip.
	Kill() error
}

// Spawner starts a worker reading from the shared socket.
type Spawner interface {
	Spawn(id int, conn *net.UDPConn) (Handle, error)
}

// InProcessSpawner runs each worker as a pair of goroutines in the calling
// process, talking over an in-memory pipe.
type InProcessSpawner struct {
	Config config.TallierConfig
	Logger lager.Logger
}

func (s *InProcessSpawner) Spawn(id int, conn *net.UDPConn) (Handle, error) {
	packetConn, err := duplicate(conn)
	if err != nil {
		return nil, err
	}

	logger := s.Logger.Session("worker", lager.Data{"worker_id": id})
	l := listener.New(id, packetConn, s.Config, logger.Session("listener"))

	coordinatorEnd, workerEnd := net.Pipe()
	handle := &inProcessHandle{
		Client:   NewClient(coordinatorEnd),
		id:       id,
		listener: l,
		done:     make(chan struct{}),
	}

	go l.Run()
	go func() {
		defer close(handle.done)
		handle.err = New(l, logger).Serve(workerEnd)
		workerEnd.Close()
	}()

	return handle, nil
}

type inProcessHandle struct {
	*Client
	id       int
	listener *listener.Listener
	done     chan struct{}
	err      error
}

func (h *inProcessHandle) ID() int {
	return h.id
}

func (h *inProcessHandle) Wait() error {
	<-h.done
	h.Client.Close()
	return h.err
}

func (h *inProcessHandle) Kill() error {
	h.listener.Stop()
	return h.Client.Close()
}

// ProcessSpawner re-executes a binary in worker mode. The child inherits
// the shared socket as fd 3 and its end of the command channel as fd 4.
type ProcessSpawner struct {
	Path   string
	Args   []string
	Logger lager.Logger
}

func (s *ProcessSpawner) Spawn(id int, conn *net.UDPConn) (Handle, error) {
	socketFile, err := conn.File()
	if err != nil {
		return nil, fmt.Errorf("duplicating socket: %s", err)
	}
	defer socketFile.Close()

	coordinatorFile, workerFile, err := socketPair()
	if err != nil {
		return nil, fmt.Errorf("creating command channel: %s", err)
	}
	defer workerFile.Close()

	coordinatorEnd, err := net.FileConn(coordinatorFile)
	coordinatorFile.Close()
	if err != nil {
		return nil, err
	}

	args := append(append([]string{}, s.Args...), fmt.Sprintf("--worker-id=%d", id))
	cmd := exec.Command(s.Path, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.ExtraFiles = []*os.File{socketFile, workerFile}

	if err := cmd.Start(); err != nil {
		coordinatorEnd.Close()
		return nil, err
	}
	s.Logger.Info("worker-started", lager.Data{"worker_id": id, "pid": cmd.Process.Pid})

	return &processHandle{
		Client: NewClient(coordinatorEnd),
		id:     id,
		cmd:    cmd,
	}, nil
}

type processHandle struct {
	*Client
	id  int
	cmd *exec.Cmd
}

func (h *processHandle) ID() int {
	return h.id
}

func (h *processHandle) Wait() error {
	defer h.Client.Close()
	return h.cmd.Wait()
}

func (h *processHandle) Kill() error {
	return h.cmd.Process.Kill()
}

// RunProcess is the body of a worker process started by ProcessSpawner.
func RunProcess(id int, tallierConfig config.TallierConfig, logger lager.Logger) error {
	socketFile := os.NewFile(3, "tallier-socket")
	conn, err := net.FilePacketConn(socketFile)
	socketFile.Close()
	if err != nil {
		return fmt.Errorf("opening inherited socket: %s", err)
	}

	controlFile := os.NewFile(4, "tallier-control")
	control, err := net.FileConn(controlFile)
	controlFile.Close()
	if err != nil {
		conn.Close()
		return fmt.Errorf("opening command channel: %s", err)
	}
	defer control.Close()

	l := listener.New(id, conn, tallierConfig, logger.Session("listener"))
	go l.Run()

	return New(l, logger).Serve(control)
}

func duplicate(conn *net.UDPConn) (net.PacketConn, error) {
	file, err := conn.File()
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return net.FilePacketConn(file)
}

func socketPair() (*os.File, *os.File, error) {
	syscall.ForkLock.RLock()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err == nil {
		unix.CloseOnExec(fds[0])
		unix.CloseOnExec(fds[1])
	}
	syscall.ForkLock.RUnlock()
	if err != nil {
		return nil, nil, err
	}

	return os.NewFile(uintptr(fds[0]), "tallier-control-coordinator"),
		os.NewFile(uintptr(fds[1]), "tallier-control-worker"), nil
}
