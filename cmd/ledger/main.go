// Command ledger runs the ledger BFA server and its one-shot reports.
package main

func main() {
	Execute()
}
