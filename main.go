package main

import "github.com/andresmejia3/facesweep/cmd"

func main() {
	cmd.Execute()
}
