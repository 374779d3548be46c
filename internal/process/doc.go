// Package process keeps child processes running.
//
// A Child starts a command in its own process group, restarts it with
// exponential backoff when it exits, and kills it when its health check
// fails repeatedly. Cancelling the context passed to Run stops the child:
// SIGTERM to the group first, SIGKILL once StopTimeout has passed.
//
//	child := process.New(process.Spec{
//	    Name: "ingest",
//	    Path: exe,
//	    Args: []string{"ingest", "--config", path},
//	    Env:  []string{"PTCONTROL_API_PORT=5001"},
//	})
//	err := child.Run(ctx)
//
// ptcontrol uses it to run the ingestion and control halves as separate
// processes under one supervisor.
package process
