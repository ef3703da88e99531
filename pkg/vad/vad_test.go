package vad

import "testing"

func loudWindow(n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		if i%2 == 0 {
			w[i] = 0.9
		} else {
			w[i] = -0.9
		}
	}
	return w
}

func quietWindow(n int) []float32 {
	return make([]float32, n)
}

func TestEnergyVAD_OnsetHysteresis(t *testing.T) {
	v := NewEnergyVAD(0.1)
	v.SetMinConfirmed(3)

	for i := 0; i < 2; i++ {
		speech, _, err := v.Process(loudWindow(512))
		if err != nil {
			t.Fatalf("process: %v", err)
		}
		if speech {
			t.Fatalf("window %d: expected no speech yet, hysteresis not satisfied", i)
		}
	}

	speech, _, err := v.Process(loudWindow(512))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !speech {
		t.Fatal("expected speech after 3 consecutive loud windows")
	}
}

func TestEnergyVAD_QuietResetsCounter(t *testing.T) {
	v := NewEnergyVAD(0.1)
	v.SetMinConfirmed(2)

	v.Process(loudWindow(512))
	if speech, _, _ := v.Process(quietWindow(512)); speech {
		t.Fatal("quiet window should never report speech")
	}
	speech, _, _ := v.Process(loudWindow(512))
	if speech {
		t.Fatal("counter should have reset after the quiet window")
	}
}

func TestEnergyVAD_Clone(t *testing.T) {
	v := NewEnergyVAD(0.2)
	v.SetMinConfirmed(5)

	clone := v.Clone().(*EnergyVAD)
	if clone.threshold != v.threshold || clone.minConfirmed != v.minConfirmed {
		t.Fatal("clone did not preserve configuration")
	}

	v.Process(loudWindow(512))
	if clone.consecutiveFrames != 0 {
		t.Fatal("clone shares state with its source")
	}
}

func TestEnergyVAD_Reset(t *testing.T) {
	v := NewEnergyVAD(0.1)
	v.SetMinConfirmed(2)
	v.Process(loudWindow(512))
	v.Reset()
	speech, _, _ := v.Process(loudWindow(512))
	if speech {
		t.Fatal("expected hysteresis counter to restart after Reset")
	}
}
