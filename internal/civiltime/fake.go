package civiltime

// FakeClock is a HardwareClock test double holding a fixed base time.
type FakeClock struct {
	Base     CivilTime
	IsValid  bool
	SetError error
	SetCalls []CivilTime
}

// Now returns Base.
func (f *FakeClock) Now() CivilTime {
	return f.Base
}

// Set records the write and updates Base unless SetError is configured.
func (f *FakeClock) Set(base CivilTime) error {
	if f.SetError != nil {
		return f.SetError
	}
	f.SetCalls = append(f.SetCalls, base)
	f.Base = base
	f.IsValid = true
	return nil
}

// Valid returns IsValid.
func (f *FakeClock) Valid() bool {
	return f.IsValid
}
