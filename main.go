/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package main

import "github.com/ksb-community/apiserver/cmd"

func main() {
	cmd.Execute()
}
