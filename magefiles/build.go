//go:build mage

package main

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/magefile/mage/mg"
)

type Build mg.Namespace

// Builds the testbed binary into bin/.
func (Build) Engine() error {
	fmt.Println("Building prism...")
	if _, err := executeCmd("go", withArgs("build", "-o", "bin/prism", "."), withStream()); err != nil {
		return err
	}
	return nil
}

// Compiles the GLSL stages under assets/shaders to SPIR-V with glslc.
func (Build) Shaders() error {
	return buildShaders()
}

func buildShaders() error {
	if _, err := exec.LookPath("glslc"); err != nil {
		fmt.Println("glslc not found, skipping shader compilation")
		return nil
	}
	vert, err := filepath.Glob("assets/shaders/*.vert")
	if err != nil {
		return err
	}
	frag, err := filepath.Glob("assets/shaders/*.frag")
	if err != nil {
		return err
	}
	for _, s := range append(vert, frag...) {
		if _, err := executeCmd("glslc", withArgs(s, "-o", s+".spv"), withStream()); err != nil {
			return err
		}
	}
	return nil
}
