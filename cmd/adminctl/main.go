// adminctl is the operator CLI for the plansync API. It drives the admin
// endpoints: drift reports (optionally exported to xlsx), bulk count sweeps,
// single-user fixes and plan assignment.
package main

func main() {
	Execute()
}
