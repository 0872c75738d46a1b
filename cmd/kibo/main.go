// Command kibo is the command-line front end for the snapshot engine: it
// loads .kibo_config, translates it into a selection policy, and drives
// build/restore/remove/prune through internal/snapshot.
package main

func main() {
	Execute()
}
