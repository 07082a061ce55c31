package codeparse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_Go_FunctionAndClass(t *testing.T) {
	src := []byte(`package main

type Greeter struct {
	Name string
}

func (g Greeter) Hello() string {
	return "hi " + g.Name
}

func main() {
	println("ok")
}
`)
	regions, warn, err := Parse("greeter.go", src)
	require.NoError(t, err)
	require.Nil(t, warn)
	require.NotEmpty(t, regions)

	var sawMethod, sawFunc, sawClass bool
	for _, r := range regions {
		switch r.Kind {
		case KindMethod:
			sawMethod = true
			assert.Equal(t, "Greeter", r.EnclosingClass)
		case KindFunction:
			if r.Name == "main" {
				sawFunc = true
			}
		case KindClass:
			sawClass = true
		}
	}
	assert.True(t, sawMethod, "expected a method region for Hello")
	assert.True(t, sawFunc, "expected a function region for main")
	assert.True(t, sawClass, "expected a class region for Greeter")
}

func TestParse_UnsupportedExtensionWarns(t *testing.T) {
	regions, warn, err := Parse("notes.txt", []byte("just text"))
	require.NoError(t, err)
	assert.Nil(t, regions)
	require.NotNil(t, warn)
	assert.Equal(t, "notes.txt", warn.Path)
}

func TestParse_Python_FunctionAndClass(t *testing.T) {
	src := []byte(`class Greeter:
    def hello(self):
        return "hi"

def main():
    pass
`)
	regions, warn, err := Parse("greeter.py", src)
	require.NoError(t, err)
	require.Nil(t, warn)

	var sawMethod bool
	for _, r := range regions {
		if r.Kind == KindMethod && r.EnclosingClass == "Greeter" {
			sawMethod = true
		}
	}
	assert.True(t, sawMethod)
}

func TestParse_SyntaxErrorStillYieldsRegions(t *testing.T) {
	src := []byte(`package main

func good() {
	println("fine")
}

func broken( {
`)
	regions, _, err := Parse("broken.go", src)
	require.NoError(t, err)

	var sawGood bool
	for _, r := range regions {
		if r.Name == "good" {
			sawGood = true
		}
	}
	assert.True(t, sawGood, "well-formed function should still parse despite a broken one")
}
