// scrivener writes text into other desktop applications.
//
//	scrivener deliver <app>   Deliver stdin (or --text) into a running app
//	scrivener shape           Print a payload as it would be delivered
//	scrivener lookup <app>    Show the automation profile for an app
//	scrivener history         List recent deliveries
//	scrivener doctor          Check configuration and desktop facilities
//	scrivener serve           Run the delivery daemon
//	scrivener config          Create, show or validate the configuration
package main

func main() {
	Execute()
}
